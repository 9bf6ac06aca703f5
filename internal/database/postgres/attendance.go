package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const eventColumns = `id, identity_id, date::text, status, verified_by, confidence, created_at`

// AttendanceRepository is the PostgreSQL attendance ledger. The partial unique
// index attendance_events_present_once guarantees one Present event per
// identity and date regardless of how many processes append concurrently.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance ledger.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// Append inserts a Present event or returns the existing one.
func (r *AttendanceRepository) Append(ctx context.Context, entry database.NewAttendance) (database.AppendResult, error) {
	if _, err := uuid.Parse(entry.IdentityID); err != nil {
		return database.AppendResult{}, fmt.Errorf("%w: %s", database.ErrNotFound, entry.IdentityID)
	}

	createdAt := entry.At
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO attendance_events (identity_id, date, status, verified_by, confidence, created_at)
		VALUES ($1, $2::date, $3, $4, $5, $6)
		ON CONFLICT (identity_id, date) WHERE status = 'Present' DO NOTHING
		RETURNING `+eventColumns,
		entry.IdentityID, entry.Date.Format(database.DateLayout), database.StatusPresent,
		entry.Method, entry.Confidence, createdAt,
	)

	event, err := scanEvent(row)
	switch {
	case err == nil:
		return database.AppendResult{Event: event}, nil
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		// ON CONFLICT returned nothing, or a concurrent insert won the index race.
	default:
		return database.AppendResult{}, mapError("insert attendance", err, nil, nil)
	}

	existing, err := r.EventOn(ctx, entry.IdentityID, entry.Date)
	if err != nil {
		return database.AppendResult{}, err
	}
	if existing == nil {
		return database.AppendResult{}, fmt.Errorf("%w: conflicting attendance event not found", database.ErrStorage)
	}
	return database.AppendResult{Event: *existing, AlreadyMarked: true}, nil
}

// EventsFor yields the events of an identity within the range, ordered by
// creation time. Every iteration runs the query again.
func (r *AttendanceRepository) EventsFor(ctx context.Context, identityID string, dr database.DateRange) iter.Seq2[database.AttendanceEvent, error] {
	return func(yield func(database.AttendanceEvent, error) bool) {
		if _, err := uuid.Parse(identityID); err != nil {
			return
		}

		rows, err := r.pool.Query(ctx, `
			SELECT `+eventColumns+`
			FROM attendance_events
			WHERE identity_id = $1
			  AND ($2::date IS NULL OR date >= $2::date)
			  AND ($3::date IS NULL OR date <= $3::date)
			ORDER BY created_at, id
		`, identityID, dateParam(dr.From), dateParam(dr.To))
		if err != nil {
			yield(database.AttendanceEvent{}, storageError("query attendance", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			event, err := scanEvent(rows)
			if err != nil {
				yield(database.AttendanceEvent{}, storageError("scan attendance", err))
				return
			}
			if !yield(event, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(database.AttendanceEvent{}, storageError("iterate attendance", err))
		}
	}
}

// EventOn returns the Present event of an identity on a date, nil if none.
func (r *AttendanceRepository) EventOn(ctx context.Context, identityID string, date time.Time) (*database.AttendanceEvent, error) {
	if _, err := uuid.Parse(identityID); err != nil {
		return nil, nil
	}

	row := r.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM attendance_events
		WHERE identity_id = $1 AND date = $2::date AND status = 'Present'
	`, identityID, date.Format(database.DateLayout))

	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("get attendance", err)
	}
	return &event, nil
}

// CountPresent returns the number of identities marked present on a date.
func (r *AttendanceRepository) CountPresent(ctx context.Context, date time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM attendance_events WHERE date = $1::date AND status = 'Present'
	`, date.Format(database.DateLayout)).Scan(&count)
	if err != nil {
		return 0, storageError("count attendance", err)
	}
	return count, nil
}

// dateParam converts an open range bound to NULL.
func dateParam(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(database.DateLayout), Valid: true}
}

func scanEvent(s scanner) (database.AttendanceEvent, error) {
	var e database.AttendanceEvent
	var date, status string
	if err := s.Scan(&e.ID, &e.IdentityID, &date, &status, &e.Method, &e.Confidence, &e.CreatedAt); err != nil {
		return e, err
	}
	d, err := database.ParseDate(date)
	if err != nil {
		return e, fmt.Errorf("parse event date %q: %w", date, err)
	}
	e.Date = d
	e.Status = database.AttendanceStatus(status)
	return e, nil
}
