package ai

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

const (
	visionMaxWidth    = 1024
	visionJpegQuality = 75
)

// prepareScreenshot downscales a page screenshot and re-encodes it as JPEG
// base64 for vision payloads. Full-page captures are far larger than any
// model needs; width is capped and height follows proportionally.
func prepareScreenshot(shot []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(shot))
	if err != nil {
		return "", fmt.Errorf("decode screenshot: %w", err)
	}

	if img.Bounds().Dx() > visionMaxWidth {
		img = imaging.Resize(img, visionMaxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: visionJpegQuality}); err != nil {
		return "", fmt.Errorf("encode screenshot: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
