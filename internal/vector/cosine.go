// Package vector holds the numeric primitives shared by enrollment and matching.
package vector

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch is returned when a vector does not have the expected length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrDegenerateVector is returned for zero-magnitude vectors, which carry no direction.
	ErrDegenerateVector = errors.New("degenerate embedding (zero magnitude)")
	// ErrNonFinite is returned when a component is NaN or infinite.
	ErrNonFinite = errors.New("embedding contains non-finite values")
)

// Cosine computes the cosine similarity between two vectors of equal length.
// Accumulation is done in float64 and the result is clamped to [-1, 1].
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, ErrDegenerateVector
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to absorb floating point error.
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	if math.IsNaN(similarity) {
		return 0, ErrNonFinite
	}

	return similarity, nil
}

// Validate checks that v is usable as an embedding of dimension dim:
// exact length, finite components and non-zero magnitude.
func Validate(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
	}

	var norm float64
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d", ErrNonFinite, i)
		}
		norm += f * f
	}
	if norm == 0 {
		return ErrDegenerateVector
	}
	return nil
}

// FromFloat64 converts a 64-bit vector to the 32-bit storage representation.
func FromFloat64(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// IsInputError reports whether err is one of the caller-correctable vector errors.
func IsInputError(err error) bool {
	return errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrDegenerateVector) ||
		errors.Is(err, ErrNonFinite)
}
