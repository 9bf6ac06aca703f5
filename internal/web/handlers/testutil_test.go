package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

const testDim = 3

// testNow is the fixed capture time used by handler tests
var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// stubExtractor returns a fixed embedding or error for every image
type stubExtractor struct {
	embedding []float32
	err       error
}

func (s *stubExtractor) Extract(ctx context.Context, image []byte) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.embedding, nil
}

// testEnv bundles a mock-backed service for handler tests
type testEnv struct {
	store     *mock.MockIdentityStore
	ledger    *mock.MockLedger
	extractor *stubExtractor
	service   *attendance.Service
}

// newTestEnv creates a service over in-memory stores with threshold 0.65
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     mock.NewMockIdentityStore(testDim),
		ledger:    mock.NewMockLedger(),
		extractor: &stubExtractor{},
	}
	env.service = attendance.NewService(env.store, env.ledger, facematch.NewMatcher(0.65), env.extractor, attendance.Config{
		EmbeddingDim: testDim,
		Now:          func() time.Time { return testNow },
		Logger:       testLogger(),
	})
	return env
}

// enroll adds an identity with the given embeddings directly to the store
func (e *testEnv) enroll(t *testing.T, name, email, roll string, embeddings ...[]float32) *database.Identity {
	t.Helper()
	identity, err := e.store.Enroll(context.Background(), database.NewIdentity{
		Name:       name,
		Email:      email,
		RollNumber: roll,
		Embeddings: embeddings,
	})
	if err != nil {
		t.Fatalf("enroll %s: %v", name, err)
	}
	return identity
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest creates a request with form fields and one file part
func multipartRequest(t *testing.T, method, path, fileField string, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if fileField != "" {
		part, err := mw.CreateFormFile(fileField, "face.jpg")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(file)
	}
	mw.Close()

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
