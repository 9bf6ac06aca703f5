package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/vector"
)

// AttendanceHandler handles verification and attendance history endpoints
type AttendanceHandler struct {
	service *attendance.Service
	logger  *slog.Logger
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(service *attendance.Service, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{service: service, logger: logger}
}

// VerifyRequest represents a verification request with a precomputed embedding
type VerifyRequest struct {
	Embedding []float64 `json:"embedding"`
}

// VerifyResponse represents the outcome of a verification
type VerifyResponse struct {
	Status     string                `json:"status"`
	Message    string                `json:"message"`
	Identity   *database.IdentityRef `json:"identity,omitempty"`
	Confidence float64               `json:"confidence,omitempty"`
	Attendance *eventResponse        `json:"attendance,omitempty"`
	Reason     string                `json:"reason,omitempty"`
}

var outcomeStatus = map[attendance.OutcomeKind]int{
	attendance.OutcomeSuccess:       http.StatusOK,
	attendance.OutcomeNoMatch:       http.StatusNotFound,
	attendance.OutcomeAlreadyMarked: http.StatusConflict,
	attendance.OutcomeInvalidInput:  http.StatusBadRequest,
}

var outcomeMessage = map[attendance.OutcomeKind]string{
	attendance.OutcomeSuccess:       "Attendance marked",
	attendance.OutcomeNoMatch:       "No matching identity found",
	attendance.OutcomeAlreadyMarked: "Attendance already marked today",
	attendance.OutcomeInvalidInput:  "Invalid input",
}

func (h *AttendanceHandler) respondOutcome(w http.ResponseWriter, o attendance.Outcome) {
	resp := VerifyResponse{
		Status:  string(o.Kind),
		Message: outcomeMessage[o.Kind],
		Reason:  o.Reason,
	}
	if o.Kind == attendance.OutcomeSuccess || o.Kind == attendance.OutcomeAlreadyMarked {
		identity := o.Identity
		resp.Identity = &identity
		resp.Confidence = o.Confidence
		resp.Attendance = newEventResponse(o.Event)
	}
	respondJSON(w, outcomeStatus[o.Kind], resp)
}

// Verify matches a precomputed embedding and records attendance
func (h *AttendanceHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	outcome, err := h.service.VerifyAndRecord(r.Context(), vector.FromFloat64(req.Embedding))
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	h.respondOutcome(w, outcome)
}

// VerifyImage extracts the embedding of an uploaded photo and records attendance
func (h *AttendanceHandler) VerifyImage(w http.ResponseWriter, r *http.Request) {
	data, err := readFormFile(w, r, "file")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.service.VerifyImage(r.Context(), data)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	h.respondOutcome(w, outcome)
}

// HistoryResponse lists the attendance events of an identity
type HistoryResponse struct {
	IdentityID string           `json:"identity_id"`
	From       string           `json:"from,omitempty"`
	To         string           `json:"to,omitempty"`
	Events     []*eventResponse `json:"events"`
	Count      int              `json:"count"`
}

// parseDateParam parses an optional YYYY-MM-DD query parameter.
func parseDateParam(r *http.Request, name string) (time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return time.Time{}, nil
	}
	return database.ParseDate(s)
}

// History returns the attendance events of an identity within an optional date range
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	from, err := parseDateParam(r, "from")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		respondError(w, http.StatusBadRequest, "to date is before from date")
		return
	}

	events, err := h.service.History(r.Context(), id, database.DateRange{From: from, To: to})
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	resp := HistoryResponse{
		IdentityID: id,
		From:       r.URL.Query().Get("from"),
		To:         r.URL.Query().Get("to"),
		Events:     []*eventResponse{},
	}
	for e, err := range events {
		if err != nil {
			respondServiceError(w, r, h.logger, err)
			return
		}
		resp.Events = append(resp.Events, newEventResponse(&e))
	}
	resp.Count = len(resp.Events)

	respondJSON(w, http.StatusOK, resp)
}

// SummaryResponse reports the attendance of one day
type SummaryResponse struct {
	Date     string `json:"date"`
	Enrolled int    `json:"enrolled"`
	Present  int    `json:"present"`
}

// Summary returns the number of enrolled and present identities for a date (default today)
func (h *AttendanceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r, "date")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	summary, err := h.service.DailySummary(r.Context(), date)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, SummaryResponse{
		Date:     summary.Date.Format(database.DateLayout),
		Enrolled: summary.Enrolled,
		Present:  summary.Present,
	})
}
