package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Downscale shrinks an image so that neither side exceeds maxSize, keeping the
// aspect ratio, and returns JPEG bytes plus the applied scale factor (new/old).
// Images already within bounds, formats Go cannot decode, or a maxSize <= 0
// are returned unchanged with scale 1 and left for the server to handle.
func Downscale(data []byte, maxSize int) ([]byte, float64, error) {
	if maxSize <= 0 {
		return data, 1, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return data, 1, nil //nolint:nilerr // unknown formats are uploaded as-is
	}
	if cfg.Width <= maxSize && cfg.Height <= maxSize {
		return data, 1, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	scale := float64(maxSize) / float64(max(bounds.Dx(), bounds.Dy()))
	width := max(1, int(float64(bounds.Dx())*scale))
	height := max(1, int(float64(bounds.Dy())*scale))

	resized := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 90}); err != nil {
		return nil, 0, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), scale, nil
}
