package attendance

import "errors"

// ErrNoExtractor is returned by image operations when no extractor is configured.
var ErrNoExtractor = errors.New("no embedding extractor configured")
