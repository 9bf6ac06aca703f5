package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/vector"
)

// IdentitiesHandler handles enrollment and identity lookup endpoints
type IdentitiesHandler struct {
	service *attendance.Service
	logger  *slog.Logger
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(service *attendance.Service, logger *slog.Logger) *IdentitiesHandler {
	return &IdentitiesHandler{service: service, logger: logger}
}

// EnrollRequest represents a JSON enrollment request
type EnrollRequest struct {
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	RollNumber string      `json:"roll_number"`
	Branch     string      `json:"branch"`
	Year       string      `json:"year"`
	Phone      string      `json:"phone"`
	Address    string      `json:"address"`
	Embeddings [][]float64 `json:"embeddings"`
}

func (req *EnrollRequest) toNewIdentity() database.NewIdentity {
	n := database.NewIdentity{
		Name:       req.Name,
		Email:      req.Email,
		RollNumber: req.RollNumber,
		Branch:     req.Branch,
		Year:       req.Year,
		Phone:      req.Phone,
		Address:    req.Address,
	}
	for _, e := range req.Embeddings {
		n.Embeddings = append(n.Embeddings, vector.FromFloat64(e))
	}
	return n
}

// Create enrolls a new identity from JSON embeddings or a multipart form with an image
func (h *IdentitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var (
		identity *database.Identity
		err      error
	)

	if isMultipart(r) {
		image, ferr := readFormFile(w, r, "image")
		if ferr != nil {
			respondError(w, http.StatusBadRequest, ferr.Error())
			return
		}
		n := database.NewIdentity{
			Name:       r.FormValue("name"),
			Email:      r.FormValue("email"),
			RollNumber: r.FormValue("roll_number"),
			Branch:     r.FormValue("branch"),
			Year:       r.FormValue("year"),
			Phone:      r.FormValue("phone"),
			Address:    r.FormValue("address"),
		}
		identity, err = h.service.EnrollImage(r.Context(), n, image)
	} else {
		var req EnrollRequest
		if derr := decodeJSON(w, r, &req); derr != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
		identity, err = h.service.Enroll(r.Context(), req.toNewIdentity())
	}

	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, newIdentityResponse(identity))
}

// Get returns a single identity
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, err := h.service.Identity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newIdentityResponse(identity))
}

// Search returns identities whose name contains the name query parameter
func (h *IdentitiesHandler) Search(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		respondError(w, http.StatusBadRequest, "name query parameter is required")
		return
	}

	identities, err := h.service.FindByName(r.Context(), name)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	result := make([]identityResponse, 0, len(identities))
	for i := range identities {
		result = append(result, newIdentityResponse(&identities[i]))
	}
	respondJSON(w, http.StatusOK, result)
}

// AddEmbeddingRequest represents a request to add one reference embedding
type AddEmbeddingRequest struct {
	Embedding []float64 `json:"embedding"`
}

// AddEmbeddingResponse describes a stored reference embedding
type AddEmbeddingResponse struct {
	ID         int64  `json:"id"`
	IdentityID string `json:"identity_id"`
	Dim        int    `json:"dim"`
}

// AddEmbedding appends a reference embedding (JSON) or an image (multipart) to an identity
func (h *IdentitiesHandler) AddEmbedding(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		ref *database.ReferenceEmbedding
		err error
	)
	if isMultipart(r) {
		image, ferr := readFormFile(w, r, "image")
		if ferr != nil {
			respondError(w, http.StatusBadRequest, ferr.Error())
			return
		}
		ref, err = h.service.AddReferenceImage(r.Context(), id, image)
	} else {
		var req AddEmbeddingRequest
		if derr := decodeJSON(w, r, &req); derr != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
		ref, err = h.service.AddReferenceEmbedding(r.Context(), id, vector.FromFloat64(req.Embedding))
	}

	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, AddEmbeddingResponse{
		ID:         ref.ID,
		IdentityID: ref.IdentityID,
		Dim:        len(ref.Vector),
	})
}
