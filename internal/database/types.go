package database

import (
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Identity is an enrolled subject with its reference embeddings.
type Identity struct {
	ID         string
	Name       string
	Email      string
	RollNumber string
	Branch     string
	Year       string
	Phone      string
	Address    string
	Embeddings []ReferenceEmbedding // insertion order
	CreatedAt  time.Time
}

// Ref returns the summary of the identity used in match results.
func (i *Identity) Ref() IdentityRef {
	return IdentityRef{
		ID:         i.ID,
		Name:       i.Name,
		Email:      i.Email,
		RollNumber: i.RollNumber,
		Branch:     i.Branch,
		Year:       i.Year,
	}
}

// IdentityRef is the identity summary carried by snapshots and outcomes.
type IdentityRef struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	RollNumber string `json:"roll_number"`
	Branch     string `json:"branch,omitempty"`
	Year       string `json:"year,omitempty"`
}

// NewIdentity holds the fields required to enroll an identity.
type NewIdentity struct {
	Name       string
	Email      string
	RollNumber string
	Branch     string
	Year       string
	Phone      string
	Address    string
	Embeddings [][]float32
}

// ReferenceEmbedding is one stored face embedding of an identity. Never updated in place.
type ReferenceEmbedding struct {
	ID         int64
	IdentityID string
	Vector     []float32
	CreatedAt  time.Time
}

// AttendanceStatus is the status of an attendance event.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "Present"
	StatusAbsent  AttendanceStatus = "Absent" // default state, never produced by matching
)

// AttendanceEvent is an immutable presence record for one identity on one calendar date.
type AttendanceEvent struct {
	ID         int64            `json:"id"`
	IdentityID string           `json:"identity_id"`
	Date       time.Time        `json:"-"`
	Status     AttendanceStatus `json:"status"`
	Method     string           `json:"verified_by"`
	Confidence float64          `json:"confidence"`
	CreatedAt  time.Time        `json:"created_at"`
}

// DateString returns the event date in DateLayout.
func (e *AttendanceEvent) DateString() string {
	return e.Date.Format(DateLayout)
}

// NewAttendance is the input to a ledger append.
type NewAttendance struct {
	IdentityID string
	Date       time.Time // calendar date, see DayOf
	Confidence float64
	Method     string
	At         time.Time // creation timestamp
}

// AppendResult reports the outcome of a ledger append.
// When AlreadyMarked is set, Event is the pre-existing event and nothing was written.
type AppendResult struct {
	Event         AttendanceEvent
	AlreadyMarked bool
}

// DayOf returns the calendar date of t in loc, as midnight UTC.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a DateLayout string into a calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// DateRange is an inclusive range of calendar dates. A zero bound is open.
// Bounds with a time of day stand for their calendar date in their own
// location, the same date DateLayout formatting yields.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Days returns the range with both bounds truncated to calendar dates
// (midnight UTC, as produced by DayOf). Open bounds stay zero.
func (r DateRange) Days() DateRange {
	return DateRange{From: calendarDay(r.From), To: calendarDay(r.To)}
}

func calendarDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return DayOf(t, t.Location())
}

// Contains reports whether the calendar date of d falls within the range.
func (r DateRange) Contains(d time.Time) bool {
	r = r.Days()
	d = calendarDay(d)
	if !r.From.IsZero() && d.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && d.After(r.To) {
		return false
	}
	return true
}
