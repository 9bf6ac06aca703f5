package constants

// Handler constants
const (
	// MaxUploadSize is the maximum multipart upload size in bytes (20MB)
	MaxUploadSize = 20 << 20

	// MaxJSONBodySize is the maximum JSON request body size in bytes (1MB)
	MaxJSONBodySize = 1 << 20

	// EnrollWorkers is the default number of parallel workers for batch enrollment
	EnrollWorkers = 4
)
