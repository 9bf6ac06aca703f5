package attendance

import "github.com/kozaktomas/face-attendance/internal/database"

// OutcomeKind tells what happened to a verification request.
type OutcomeKind string

const (
	// OutcomeSuccess means a match was found and a new Present event recorded.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeNoMatch means no enrolled identity exceeded the threshold.
	OutcomeNoMatch OutcomeKind = "no_match"
	// OutcomeAlreadyMarked means the matched identity was already present that day.
	OutcomeAlreadyMarked OutcomeKind = "already_marked"
	// OutcomeInvalidInput means the embedding or image could not be used.
	OutcomeInvalidInput OutcomeKind = "invalid_input"
)

// Outcome is the result of a verification. Identity and Event are set for
// success and already-marked outcomes, Reason for invalid input.
type Outcome struct {
	Kind       OutcomeKind
	Identity   database.IdentityRef
	Confidence float64 // similarity of the accepted match
	Event      *database.AttendanceEvent
	Reason     string
}

func invalidInput(reason string) Outcome {
	return Outcome{Kind: OutcomeInvalidInput, Reason: reason}
}
