package extractor

import "errors"

var (
	// ErrUnusableImage is returned when the service rejects the image:
	// undecodable, no face or more than one face.
	ErrUnusableImage = errors.New("unusable image")
	// ErrImageTooLarge is returned when the image exceeds the service limit.
	ErrImageTooLarge = errors.New("image too large")
	// ErrUnavailable is returned for transport failures and server errors.
	ErrUnavailable = errors.New("extractor unavailable")
)
