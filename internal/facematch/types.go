// Package facematch finds the enrolled identity whose reference embedding is
// most similar to a query embedding.
package facematch

import "github.com/kozaktomas/face-attendance/internal/database"

// MatchResult is the outcome of a search. A result with Matched == false is a
// normal answer (no identity above the threshold), not an error.
type MatchResult struct {
	Matched    bool                 `json:"matched"`
	Identity   database.IdentityRef `json:"identity"`
	Similarity float64              `json:"similarity"` // best similarity seen, even when not matched
	Position   int                  `json:"-"`          // snapshot position of the best embedding, -1 if none
}

// CandidateIndex proposes snapshot positions that are likely to be close to
// the query. Returned positions are re-scored exactly by the Matcher.
type CandidateIndex interface {
	Candidates(query []float32, k int) ([]int, error)
}

// IndexProvider returns a CandidateIndex for the given snapshot.
type IndexProvider func(s *database.Snapshot) (CandidateIndex, error)
