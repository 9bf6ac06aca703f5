package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.Ping)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Service, s.logger)
	identitiesHandler := handlers.NewIdentitiesHandler(s.deps.Service, s.logger)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Check)

		// Attendance
		r.Post("/attendance/verify", attendanceHandler.Verify)
		r.Post("/attendance/verify-image", attendanceHandler.VerifyImage)
		r.Get("/attendance/summary", attendanceHandler.Summary)

		// Identities
		r.Post("/identities", identitiesHandler.Create)
		r.Get("/identities", identitiesHandler.Search)
		r.Get("/identities/{id}", identitiesHandler.Get)
		r.Post("/identities/{id}/embeddings", identitiesHandler.AddEmbedding)
		r.Get("/identities/{id}/attendance", attendanceHandler.History)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}` + "\n"))
	})
}
