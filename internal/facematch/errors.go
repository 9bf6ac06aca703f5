package facematch

import "errors"

var (
	// ErrEmptyPopulation is returned when the snapshot holds no reference embeddings.
	ErrEmptyPopulation = errors.New("no enrolled reference embeddings")

	// ErrBadReference wraps a stored reference embedding that cannot be
	// compared with the query, such as one of another dimension. It points at
	// the population, not at the caller's input.
	ErrBadReference = errors.New("unusable reference embedding")
)
