package handlers

import (
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// eventResponse is the wire form of an attendance event
type eventResponse struct {
	ID         int64     `json:"id"`
	Date       string    `json:"date"`
	Status     string    `json:"status"`
	VerifiedBy string    `json:"verified_by"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

func newEventResponse(e *database.AttendanceEvent) *eventResponse {
	if e == nil {
		return nil
	}
	return &eventResponse{
		ID:         e.ID,
		Date:       e.DateString(),
		Status:     string(e.Status),
		VerifiedBy: e.Method,
		Confidence: e.Confidence,
		CreatedAt:  e.CreatedAt,
	}
}

// identityResponse is the wire form of an identity. Embeddings are not exposed.
type identityResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	RollNumber string    `json:"roll_number"`
	Branch     string    `json:"branch,omitempty"`
	Year       string    `json:"year,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Address    string    `json:"address,omitempty"`
	Embeddings int       `json:"embeddings"`
	CreatedAt  time.Time `json:"created_at"`
}

func newIdentityResponse(i *database.Identity) identityResponse {
	return identityResponse{
		ID:         i.ID,
		Name:       i.Name,
		Email:      i.Email,
		RollNumber: i.RollNumber,
		Branch:     i.Branch,
		Year:       i.Year,
		Phone:      i.Phone,
		Address:    i.Address,
		Embeddings: len(i.Embeddings),
		CreatedAt:  i.CreatedAt,
	}
}
