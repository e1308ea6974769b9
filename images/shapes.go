// Package images - Geometry and frame helpers shared by the decoder, renderer and pipeline.
package images

import (
	"image"

	"github.com/chewxy/math32"
)

// Box is a bounding box in normalized [0,1] coordinates, in the
// [ymin, xmin, ymax, xmax] order SSD style detection heads emit.
type Box struct {
	YMin, XMin, YMax, XMax float32
}

// BoxFromSlice reads a box from four consecutive tensor values.
func BoxFromSlice(v []float32) Box {
	return Box{YMin: v[0], XMin: v[1], YMax: v[2], XMax: v[3]}
}

// Array returns the box in tensor order.
func (b Box) Array() [4]float32 {
	return [4]float32{b.YMin, b.XMin, b.YMax, b.XMax}
}

// Area returns the normalized area, zero for degenerate boxes.
func (b Box) Area() float32 {
	w := b.XMax - b.XMin
	h := b.YMax - b.YMin
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// ToRect scales the box to a width x height frame and clamps it to the frame bounds.
//
// Arguments:
//   - width: The frame width in pixels.
//   - height: The frame height in pixels.
//
// Returns:
//   - image.Rectangle: The canonical pixel rectangle, possibly empty.
func (b Box) ToRect(width, height int) image.Rectangle {
	clamp := func(v float32) float32 { return math32.Max(0, math32.Min(1, v)) }
	x1 := int(math32.Floor(clamp(b.XMin) * float32(width)))
	y1 := int(math32.Floor(clamp(b.YMin) * float32(height)))
	x2 := int(math32.Floor(clamp(b.XMax) * float32(width)))
	y2 := int(math32.Floor(clamp(b.YMax) * float32(height)))
	return image.Rect(x1, y1, x2, y2).Canon()
}

// CalculateIoU returns the Intersection over Union of two boxes, a value in [0, 1].
//
// Non-overlapping or degenerate boxes return 0 instead of dividing by zero.
//
// Example Usage:
// ```go
//
//	a := Box{YMin: 0, XMin: 0, YMax: 0.5, XMax: 0.5}
//	b := Box{YMin: 0.25, XMin: 0.25, YMax: 0.75, XMax: 0.75}
//	iou := CalculateIoU(a, b) // 0.0625 / (0.25 + 0.25 - 0.0625) ≈ 0.142857
//
// ```
func CalculateIoU(r, o Box) float32 {
	ix1 := math32.Max(r.XMin, o.XMin)
	iy1 := math32.Max(r.YMin, o.YMin)
	ix2 := math32.Min(r.XMax, o.XMax)
	iy2 := math32.Min(r.YMax, o.YMax)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0
	}
	return interArea / unionArea
}
