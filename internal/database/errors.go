package database

import (
	"errors"
	"net/http"
)

// Domain errors for identity and ledger storage.
var (
	ErrNotFound          = errors.New("identity not found")
	ErrDuplicateIdentity = errors.New("identity already exists")
	ErrInvalidIdentity   = errors.New("invalid identity")
	// ErrStorage wraps faults of the underlying persistence layer. Callers may retry.
	ErrStorage = errors.New("storage unavailable")
)

// MapHTTPStatus maps storage errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateIdentity):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidIdentity):
		return http.StatusBadRequest
	case errors.Is(err, ErrStorage):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
