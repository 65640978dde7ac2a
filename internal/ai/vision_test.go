package ai

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyJPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	return buf.Bytes()
}

func TestPrepareScreenshotKeepsSmallImages(t *testing.T) {
	encoded, err := prepareScreenshot(tinyJPEG(t, 640, 480))
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(decoded))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 640, img.Bounds().Dx())
}

func TestPrepareScreenshotDownscalesWideImages(t *testing.T) {
	encoded, err := prepareScreenshot(tinyJPEG(t, 2048, 1024))
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(decoded))
	require.NoError(t, err)
	assert.Equal(t, visionMaxWidth, img.Bounds().Dx())
	assert.Equal(t, 512, img.Bounds().Dy())
}

func TestPrepareScreenshotRejectsGarbage(t *testing.T) {
	_, err := prepareScreenshot([]byte("not an image"))
	assert.Error(t, err)
}
