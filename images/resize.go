package images

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// Resizer prepares frames for a model input of a fixed size.
type Resizer struct {
	// Width and Height of the model input in pixels.
	Width, Height int
	// Interpolation used when scaling. Bilinear matches what TFLite examples use.
	Interpolation resize.InterpolationFunction
}

// NewResizer returns a bilinear resizer for the given input size.
func NewResizer(size image.Point) *Resizer {
	return &Resizer{Width: size.X, Height: size.Y, Interpolation: resize.Bilinear}
}

// Resize returns a new frame scaled to the model input size.
//
// The source is never modified. A frame that already has the target size is copied so the
// caller always owns the result.
//
// Arguments:
//   - frame: The captured frame.
//
// Returns:
//   - *image.RGBA: The model input frame.
func (r *Resizer) Resize(frame image.Image) *image.RGBA {
	b := frame.Bounds()
	if r.Width <= 0 || r.Height <= 0 || (b.Dx() == r.Width && b.Dy() == r.Height) {
		return CloneRGBA(frame)
	}
	return CloneRGBA(resize.Resize(uint(r.Width), uint(r.Height), frame, r.Interpolation))
}

// CloneRGBA copies any image into a freshly allocated RGBA anchored at the origin.
func CloneRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// PackHWC writes the RGB channels of img into dst in height-width-channel order.
//
// dst must hold at least width*height*3 elements.
func PackHWC(img *image.RGBA, dst []uint8) {
	b := img.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			dst[i] = row[x*4]
			dst[i+1] = row[x*4+1]
			dst[i+2] = row[x*4+2]
			i += 3
		}
	}
}

// PackCHW writes the RGB channels of img into dst in channel-height-width order, applying
// (v - mean) / std to every value.
func PackCHW(img *image.RGBA, dst []float32, mean, std float32) {
	b := img.Bounds()
	plane := b.Dx() * b.Dy()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			dst[i] = (float32(row[x*4]) - mean) / std
			dst[plane+i] = (float32(row[x*4+1]) - mean) / std
			dst[2*plane+i] = (float32(row[x*4+2]) - mean) / std
			i++
		}
	}
}
