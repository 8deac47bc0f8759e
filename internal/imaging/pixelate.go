// Package imaging post-processes generated pictures.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// Pixelate turns an image into blocky pixel art: it shrinks the picture so
// that every block of pixelSize×pixelSize source pixels becomes one pixel,
// then scales it back up with nearest-neighbour so the blocks stay sharp.
// The result is always PNG.
func Pixelate(raw []byte, pixelSize int) ([]byte, error) {
	if pixelSize < 2 {
		return nil, fmt.Errorf("imaging: pixel size must be at least 2, got %d", pixelSize)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("imaging: decoding image: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	sw, sh := max(1, w/pixelSize), max(1, h/pixelSize)

	small := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), src, b, draw.Src, nil)

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(out, out.Bounds(), small, small.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("imaging: encoding png: %w", err)
	}
	return buf.Bytes(), nil
}
