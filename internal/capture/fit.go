package capture

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/bryanchriswhite/downscaler/internal/geometry"
)

// Fit scales src into dst following mode. Letterbox bars are black.
func Fit(dst, src *image.RGBA, mode geometry.AspectMode) {
	db := dst.Bounds()
	sb := src.Bounds()
	box := geometry.FitRect(
		geometry.Size{Width: sb.Dx(), Height: sb.Dy()},
		geometry.Size{Width: db.Dx(), Height: db.Dy()},
		mode,
	)
	r := image.Rect(box.Left, box.Top, box.Right, box.Bottom).Add(db.Min)

	if r != db {
		draw.Draw(dst, db, image.Black, image.Point{}, draw.Src)
	}
	if r.Empty() {
		return
	}
	if r.Size() == sb.Size() {
		draw.Draw(dst, r, src, sb.Min, draw.Src)
		return
	}
	draw.ApproxBiLinear.Scale(dst, r, src, sb, draw.Src, nil)
}
