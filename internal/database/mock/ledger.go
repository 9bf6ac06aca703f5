package mock

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// MockLedger is an in-memory implementation of database.AttendanceWriter.
// Appends for one (identity, date) are serialized by a keyed mutex.
type MockLedger struct {
	mu      sync.RWMutex
	events  []database.AttendanceEvent
	present map[string]int // presentKey -> index into events
	nextID  int64
	keys    *keyedMutex

	// BeforeCommit, if set, runs while the (identity, date) lock is held,
	// after the duplicate check and before the event is stored.
	BeforeCommit func(ctx context.Context)

	// Error injection
	AppendError       error
	EventsError       error
	EventOnError      error
	CountPresentError error
}

// NewMockLedger creates an empty ledger
func NewMockLedger() *MockLedger {
	return &MockLedger{
		present: make(map[string]int),
		keys:    newKeyedMutex(),
	}
}

func presentKey(identityID string, date time.Time) string {
	return identityID + "|" + date.Format(database.DateLayout)
}

// Append records a Present event unless one exists for the identity on that date
func (m *MockLedger) Append(ctx context.Context, entry database.NewAttendance) (database.AppendResult, error) {
	if m.AppendError != nil {
		return database.AppendResult{}, m.AppendError
	}
	if entry.IdentityID == "" {
		return database.AppendResult{}, fmt.Errorf("%w: identity id is required", database.ErrInvalidIdentity)
	}

	key := presentKey(entry.IdentityID, entry.Date)
	unlock := m.keys.Lock(key)
	defer unlock()

	m.mu.RLock()
	idx, ok := m.present[key]
	var existing database.AttendanceEvent
	if ok {
		existing = m.events[idx]
	}
	m.mu.RUnlock()
	if ok {
		return database.AppendResult{Event: existing, AlreadyMarked: true}, nil
	}

	if m.BeforeCommit != nil {
		m.BeforeCommit(ctx)
	}
	if err := ctx.Err(); err != nil {
		return database.AppendResult{}, err
	}

	createdAt := entry.At
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	event := database.AttendanceEvent{
		ID:         m.nextID,
		IdentityID: entry.IdentityID,
		Date:       entry.Date,
		Status:     database.StatusPresent,
		Method:     entry.Method,
		Confidence: entry.Confidence,
		CreatedAt:  createdAt,
	}
	m.events = append(m.events, event)
	m.present[key] = len(m.events) - 1

	return database.AppendResult{Event: event}, nil
}

// EventsFor yields the events of an identity within the range.
// Each iteration copies the matching events under the read lock.
func (m *MockLedger) EventsFor(ctx context.Context, identityID string, r database.DateRange) iter.Seq2[database.AttendanceEvent, error] {
	return func(yield func(database.AttendanceEvent, error) bool) {
		if m.EventsError != nil {
			yield(database.AttendanceEvent{}, m.EventsError)
			return
		}

		m.mu.RLock()
		var matched []database.AttendanceEvent
		for _, e := range m.events {
			if e.IdentityID == identityID && r.Contains(e.Date) {
				matched = append(matched, e)
			}
		}
		m.mu.RUnlock()

		slices.SortStableFunc(matched, func(a, b database.AttendanceEvent) int {
			return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
		})

		for _, e := range matched {
			if err := ctx.Err(); err != nil {
				yield(database.AttendanceEvent{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// EventOn returns the Present event of an identity on a date, nil if none
func (m *MockLedger) EventOn(ctx context.Context, identityID string, date time.Time) (*database.AttendanceEvent, error) {
	if m.EventOnError != nil {
		return nil, m.EventOnError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.present[presentKey(identityID, date)]
	if !ok {
		return nil, nil
	}
	e := m.events[idx]
	return &e, nil
}

// CountPresent returns the number of identities marked present on a date
func (m *MockLedger) CountPresent(ctx context.Context, date time.Time) (int, error) {
	if m.CountPresentError != nil {
		return 0, m.CountPresentError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	day := date.Format(database.DateLayout)
	count := 0
	for _, e := range m.events {
		if e.Status == database.StatusPresent && e.Date.Format(database.DateLayout) == day {
			count++
		}
	}
	return count, nil
}

// Len returns the total number of stored events
func (m *MockLedger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
