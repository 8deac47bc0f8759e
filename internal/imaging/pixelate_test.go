package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradientPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPixelate_KeepsSizeAndMakesBlocks(t *testing.T) {
	raw := gradientPNG(t, 64, 64)

	out, err := Pixelate(raw, 8)
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 64, img.Bounds().Dy())

	// Every pixel inside one 8×8 block has the same colour.
	want := img.At(8, 8)
	for y := 8; y < 16; y++ {
		for x := 8; x < 16; x++ {
			assert.Equal(t, want, img.At(x, y))
		}
	}
	assert.NotEqual(t, img.At(0, 0), img.At(56, 56))
}

func TestPixelate_TinyImage(t *testing.T) {
	out, err := Pixelate(gradientPNG(t, 3, 3), 8)
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
}

func TestPixelate_Errors(t *testing.T) {
	_, err := Pixelate([]byte("not an image"), 8)
	assert.Error(t, err)

	_, err = Pixelate(gradientPNG(t, 4, 4), 1)
	assert.Error(t, err)
}
