package database

import (
	"context"
	"iter"
	"time"
)

// IdentityReader provides read-only access to enrolled identities.
type IdentityReader interface {
	// Get retrieves an identity with its embeddings, ErrNotFound if unknown
	Get(ctx context.Context, id string) (*Identity, error)
	// GetByRollNumber retrieves an identity by its roll number, ErrNotFound if unknown
	GetByRollNumber(ctx context.Context, rollNumber string) (*Identity, error)
	// FindByName returns identities whose normalized name matches.
	// Names are compared lowercase, without diacritics, dashes as spaces.
	FindByName(ctx context.Context, name string) ([]Identity, error)
	// Count returns the number of enrolled identities
	Count(ctx context.Context) (int, error)
	// Snapshot returns an immutable point-in-time view of the population for matching
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// IdentityWriter provides enrollment on top of IdentityReader.
type IdentityWriter interface {
	IdentityReader

	// Enroll stores a new identity. Fails with ErrDuplicateIdentity when the
	// email or roll number is taken.
	Enroll(ctx context.Context, identity NewIdentity) (*Identity, error)

	// AddReferenceEmbedding appends an embedding to an existing identity.
	AddReferenceEmbedding(ctx context.Context, identityID string, embedding []float32) (*ReferenceEmbedding, error)
}

// AttendanceReader provides read-only access to the attendance ledger.
type AttendanceReader interface {
	// EventsFor yields the events of an identity within the range, ordered by
	// creation time. The sequence is lazy; ranging over it again re-reads storage.
	EventsFor(ctx context.Context, identityID string, r DateRange) iter.Seq2[AttendanceEvent, error]
	// EventOn returns the Present event of an identity on a date, nil if none
	EventOn(ctx context.Context, identityID string, date time.Time) (*AttendanceEvent, error)
	// CountPresent returns the number of identities marked present on a date
	CountPresent(ctx context.Context, date time.Time) (int, error)
}

// AttendanceWriter is the append-only attendance ledger.
type AttendanceWriter interface {
	AttendanceReader

	// Append records a Present event. If the identity already has a Present
	// event on that date, nothing is written and the existing event is
	// returned with AlreadyMarked set. Concurrent appends for the same
	// (identity, date) create exactly one event.
	Append(ctx context.Context, entry NewAttendance) (AppendResult, error)
}
