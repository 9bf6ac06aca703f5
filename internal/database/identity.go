package database

import (
	"fmt"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/vector"
)

// NormalizeEmail returns the comparison form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeRollNumber returns the comparison form of a roll number.
func NormalizeRollNumber(rollNumber string) string {
	return strings.TrimSpace(rollNumber)
}

// PrepareIdentity trims and validates an enrollment request against the
// configured embedding dimension. Embeddings are copied.
func PrepareIdentity(n NewIdentity, dim int) (NewIdentity, error) {
	out := NewIdentity{
		Name:       strings.TrimSpace(n.Name),
		Email:      NormalizeEmail(n.Email),
		RollNumber: NormalizeRollNumber(n.RollNumber),
		Branch:     strings.TrimSpace(n.Branch),
		Year:       strings.TrimSpace(n.Year),
		Phone:      strings.TrimSpace(n.Phone),
		Address:    strings.TrimSpace(n.Address),
	}

	switch {
	case out.Name == "":
		return out, fmt.Errorf("%w: name is required", ErrInvalidIdentity)
	case out.Email == "":
		return out, fmt.Errorf("%w: email is required", ErrInvalidIdentity)
	case out.RollNumber == "":
		return out, fmt.Errorf("%w: roll number is required", ErrInvalidIdentity)
	case len(n.Embeddings) == 0:
		return out, fmt.Errorf("%w: at least one reference embedding is required", ErrInvalidIdentity)
	}

	out.Embeddings = make([][]float32, 0, len(n.Embeddings))
	for i, emb := range n.Embeddings {
		if err := vector.Validate(emb, dim); err != nil {
			return out, fmt.Errorf("embedding %d: %w", i, err)
		}
		out.Embeddings = append(out.Embeddings, append([]float32(nil), emb...))
	}

	return out, nil
}
