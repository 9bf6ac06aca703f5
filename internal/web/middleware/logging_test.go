package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"ok", http.StatusOK, "INFO"},
		{"implicit ok", 0, "INFO"},
		{"conflict", http.StatusConflict, "WARN"},
		{"storage down", http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.status != 0 {
					w.WriteHeader(tc.status)
				}
				w.Write([]byte("{}"))
			})
			handler := chiMiddleware.RequestID(RequestLogger(logger)(next))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance/verify", nil)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("failed to parse log line: %v\n%s", err, buf.String())
			}
			if entry["level"] != tc.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tc.wantLevel)
			}
			if entry["path"] != "/api/v1/attendance/verify" || entry["method"] != http.MethodPost {
				t.Errorf("unexpected request fields: %v", entry)
			}
			if entry["request_id"] == "" {
				t.Error("request_id missing")
			}
			if entry["bytes"] != float64(2) {
				t.Errorf("bytes = %v, want 2", entry["bytes"])
			}
		})
	}
}
