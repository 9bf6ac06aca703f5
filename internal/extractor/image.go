package extractor

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// PrepareImage downscales images that exceed maxBytes or maxSize pixels on
// either side, re-encoding them as JPEG. Smaller images are returned unchanged,
// and so are small images Go cannot decode (the service decides on those).
func PrepareImage(data []byte, maxBytes int64, maxSize int) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	tooLarge := int64(len(data)) > maxBytes
	if err != nil {
		if tooLarge {
			return nil, fmt.Errorf("%w: failed to decode image: %w", ErrUnusableImage, err)
		}
		return data, nil
	}

	if !tooLarge && cfg.Width <= maxSize && cfg.Height <= maxSize {
		return data, nil
	}

	resized, err := ResizeImage(data, maxSize)
	if err != nil {
		return nil, err
	}
	if int64(len(resized)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes after resizing", ErrImageTooLarge, len(resized))
	}
	return resized, nil
}

// ResizeImage resizes an image so that neither side exceeds maxSize, keeping
// the aspect ratio, and encodes it as JPEG.
func ResizeImage(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %w", ErrUnusableImage, err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	newWidth, newHeight := width, height
	if width > maxSize || height > maxSize {
		if width > height {
			newWidth = maxSize
			newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
		} else {
			newHeight = maxSize
			newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
		}
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), nil
}
