package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	panelPadding = 4
	lineSpacing  = 2
)

var face = basicfont.Face7x13

// strokeRect draws the outline of rect, thickness pixels wide, growing inwards.
func strokeRect(dst *image.RGBA, rect image.Rectangle, thickness int, c color.RGBA) {
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	src := image.NewUniform(c)
	t := min(thickness, rect.Dx(), rect.Dy())
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+t),
		image.Rect(rect.Min.X, rect.Max.Y-t, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+t, rect.Max.Y),
		image.Rect(rect.Max.X-t, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Over)
	}
}

// drawLabel writes text on a filled tag sitting on top of the box corner, or just inside
// the box when there is no room above it.
func drawLabel(dst *image.RGBA, text string, corner image.Point, fg, bg color.RGBA) {
	w := font.MeasureString(face, text).Ceil() + 2*panelPadding
	h := face.Metrics().Height.Ceil() + lineSpacing
	tag := image.Rect(corner.X, corner.Y-h, corner.X+w, corner.Y)
	if tag.Min.Y < dst.Bounds().Min.Y {
		tag = tag.Add(image.Pt(0, h))
	}
	draw.Draw(dst, tag.Intersect(dst.Bounds()), image.NewUniform(bg), image.Point{}, draw.Over)
	drawText(dst, text, image.Pt(tag.Min.X+panelPadding, tag.Min.Y), fg)
}

// drawPanel writes lines top-left over a translucent background.
func drawPanel(dst *image.RGBA, lines []string, fg, bg color.RGBA) {
	if len(lines) == 0 {
		return
	}
	lineHeight := face.Metrics().Height.Ceil() + lineSpacing
	width := 0
	for _, l := range lines {
		width = max(width, font.MeasureString(face, l).Ceil())
	}
	origin := dst.Bounds().Min
	panel := image.Rect(origin.X, origin.Y, origin.X+width+2*panelPadding, origin.Y+len(lines)*lineHeight+2*panelPadding)
	draw.Draw(dst, panel.Intersect(dst.Bounds()), image.NewUniform(bg), image.Point{}, draw.Over)

	for i, l := range lines {
		drawText(dst, l, image.Pt(origin.X+panelPadding, origin.Y+panelPadding+i*lineHeight), fg)
	}
}

// drawText draws text whose line box starts at top.
func drawText(dst *image.RGBA, text string, top image.Point, c color.RGBA) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(top.X, top.Y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}
