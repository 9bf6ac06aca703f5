package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const (
	pgDuplicateKeyCode = "23505"
	pgForeignKeyCode   = "23503"
)

// mapError translates database errors to domain errors.
// sql.ErrNoRows becomes notFoundErr, a unique violation (23505) becomes
// duplicateErr and a foreign key violation (23503) becomes database.ErrNotFound.
// Context errors pass through; everything else wraps database.ErrStorage.
func mapError(op string, err error, notFoundErr, duplicateErr error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	if notFoundErr != nil && errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, notFoundErr)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgDuplicateKeyCode:
			if duplicateErr != nil {
				return fmt.Errorf("%s: %w (%s)", op, duplicateErr, pqErr.Constraint)
			}
		case pgForeignKeyCode:
			return fmt.Errorf("%s: %w", op, database.ErrNotFound)
		}
	}

	return fmt.Errorf("%s: %w: %w", op, database.ErrStorage, err)
}

// storageError wraps err as a storage fault unless it is a context error.
func storageError(op string, err error) error {
	return mapError(op, err, nil, nil)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgDuplicateKeyCode
}
