package overlay

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Widget is one block of overlay content.
type Widget interface {
	ID() string

	// Render draws the widget with its top-left corner at at and returns the
	// area it covered. An empty area means the widget had nothing to show.
	Render(img *image.RGBA, at image.Point) (image.Rectangle, error)
}

// BlendImage composites src onto dst at (x, y) with the given opacity.
// Pixels falling outside dst are clipped.
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	sb := src.Bounds()
	r := image.Rect(x, y, x+sb.Dx(), y+sb.Dy()).Intersect(dst.Bounds())
	if r.Empty() || opacity <= 0 {
		return
	}
	sp := sb.Min.Add(r.Min.Sub(image.Pt(x, y)))
	if opacity >= 1 {
		draw.Draw(dst, r, src, sp, draw.Over)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(opacity * 255)})
	draw.DrawMask(dst, r, src, sp, mask, image.Point{}, draw.Over)
}
