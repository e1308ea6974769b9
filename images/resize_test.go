package images

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestResizerScalesToInput(t *testing.T) {
	src := solid(640, 480, color.RGBA{10, 20, 30, 255})
	r := NewResizer(image.Pt(300, 300))

	out := r.Resize(src)
	assert.Equal(t, image.Rect(0, 0, 300, 300), out.Bounds())
	px := out.RGBAAt(150, 150)
	assert.InDelta(t, 10, int(px.R), 1)
	assert.InDelta(t, 20, int(px.G), 1)
	assert.InDelta(t, 30, int(px.B), 1)
}

func TestResizerCopiesWhenSizeMatches(t *testing.T) {
	src := solid(4, 4, color.RGBA{1, 2, 3, 255})
	r := NewResizer(image.Pt(4, 4))

	out := r.Resize(src)
	require.NotSame(t, src, out)
	out.SetRGBA(0, 0, color.RGBA{255, 255, 255, 255})
	assert.Equal(t, color.RGBA{1, 2, 3, 255}, src.RGBAAt(0, 0))
}

func TestCloneRGBAAnchorsAtOrigin(t *testing.T) {
	src := solid(8, 8, color.RGBA{9, 9, 9, 255}).SubImage(image.Rect(2, 2, 6, 6))

	out := CloneRGBA(src)
	assert.Equal(t, image.Rect(0, 0, 4, 4), out.Bounds())
	assert.Equal(t, color.RGBA{9, 9, 9, 255}, out.RGBAAt(0, 0))
}

func TestPackHWC(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{1, 2, 3, 255})
	img.SetRGBA(1, 0, color.RGBA{4, 5, 6, 255})

	dst := make([]uint8, 6)
	PackHWC(img, dst)
	assert.Equal(t, []uint8{1, 2, 3, 4, 5, 6}, dst)
}

func TestPackCHW(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{0, 255, 0, 255})
	img.SetRGBA(1, 0, color.RGBA{255, 0, 255, 255})

	dst := make([]float32, 6)
	PackCHW(img, dst, 0, 255)
	assert.Equal(t, []float32{0, 1, 1, 0, 0, 1}, dst)
}
