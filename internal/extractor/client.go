// Package extractor talks to the face recognition service that turns a photo
// into a face embedding.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

const defaultExtractorURL = "http://localhost:8000"

// Client computes face embeddings using the recognition service
type Client struct {
	baseURL       string
	client        *http.Client
	maxImageBytes int64
	maxImageSize  int
}

// NewClient creates a new extractor client
func NewClient(cfg *config.ExtractorConfig) *Client {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultExtractorURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = constants.MaxImageBytes
	}
	maxSize := cfg.MaxImageSize
	if maxSize <= 0 {
		maxSize = constants.MaxImageSize
	}
	return &Client{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		client:        &http.Client{Timeout: timeout},
		maxImageBytes: maxBytes,
		maxImageSize:  maxSize,
	}
}

// embeddingResponse represents the response of /generate-embedding
type embeddingResponse struct {
	Success     bool      `json:"success"`
	Embedding   []float32 `json:"embedding"`
	FaceQuality float64   `json:"face_quality"`
}

// errorResponse is the error body of the service
type errorResponse struct {
	Detail string `json:"detail"`
}

// Result contains the embedding and the detector confidence
type Result struct {
	Embedding   []float32
	FaceQuality float64
}

// Extract returns the embedding of the single face in the image.
func (c *Client) Extract(ctx context.Context, imageData []byte) ([]float32, error) {
	res, err := c.ExtractWithQuality(ctx, imageData)
	if err != nil {
		return nil, err
	}
	return res.Embedding, nil
}

// ExtractWithQuality returns the embedding together with the face detection score.
func (c *Client) ExtractWithQuality(ctx context.Context, imageData []byte) (*Result, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnusableImage)
	}

	data, err := PrepareImage(imageData, c.maxImageBytes, c.maxImageSize)
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, "/generate-embedding", data)
	if err != nil {
		return nil, err
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %w", ErrUnavailable, err)
	}
	if !embResp.Success || len(embResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", ErrUnavailable)
	}

	return &Result{Embedding: embResp.Embedding, FaceQuality: embResp.FaceQuality}, nil
}

// post sends raw image bytes and returns the body of a 200 response.
func (c *Client) post(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: request failed: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", ErrUnusableImage, errorDetail(body))
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return nil, fmt.Errorf("%w: %s", ErrImageTooLarge, errorDetail(body))
	default:
		return nil, fmt.Errorf("%w: API error (status %d): %s", ErrUnavailable, resp.StatusCode, errorDetail(body))
	}
}

func errorDetail(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Detail != "" {
		return e.Detail
	}
	return strings.TrimSpace(string(body))
}

// IsUnusable reports whether err means the caller sent an image the service cannot use.
func IsUnusable(err error) bool {
	return errors.Is(err, ErrUnusableImage) || errors.Is(err, ErrImageTooLarge)
}
