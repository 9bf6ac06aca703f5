// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Matching constants
const (
	// DefaultMatchThreshold is the similarity a match must strictly exceed
	DefaultMatchThreshold = 0.65

	// DefaultEmbeddingDim is the dimension of InsightFace buffalo_l embeddings
	DefaultEmbeddingDim = 512

	// DefaultHNSWCandidates is the number of candidates re-scored on the HNSW path
	DefaultHNSWCandidates = 64
)

// Attendance constants
const (
	// VerificationMethodFace is the method recorded on events created by face matching
	VerificationMethodFace = "face_recognition"
)

// Processing constants
const (
	// MaxImageSize is the maximum dimension (width or height) for image processing
	MaxImageSize = 1920

	// MaxImageBytes is the largest image forwarded to the extractor unchanged
	MaxImageBytes = 5 << 20
)
