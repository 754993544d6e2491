package geometry

import (
	"fmt"
	"strings"
)

// ScaleFactors holds sourceSize / mirrorSize per axis.
type ScaleFactors struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewScaleFactors computes source/mirror ratios. A zero or negative extent on
// either side yields ErrDegenerateScale rather than a division.
func NewScaleFactors(source, mirror Size) (ScaleFactors, error) {
	if source.Empty() || mirror.Empty() {
		return ScaleFactors{}, fmt.Errorf("%w: source %s, mirror %s", ErrDegenerateScale, source, mirror)
	}
	return ScaleFactors{
		X: float64(source.Width) / float64(mirror.Width),
		Y: float64(source.Height) / float64(mirror.Height),
	}, nil
}

// Valid reports whether both factors are strictly positive.
func (f ScaleFactors) Valid() bool {
	return f.X > 0 && f.Y > 0
}

// ScaleToSource maps a mirror-local point into source client space.
//
// Products are truncated toward zero, so 10*1.99 maps to 19. A mirror no
// larger than the source round-trips within one pixel; an upscaled mirror
// round-trips within one source pixel.
func ScaleToSource(p Point, f ScaleFactors) (Point, error) {
	if !f.Valid() {
		return Point{}, ErrDegenerateScale
	}
	return Point{
		X: int(float64(p.X) * f.X),
		Y: int(float64(p.Y) * f.Y),
	}, nil
}

// AspectMode controls how a frame is fitted into the mirror surface.
type AspectMode int

const (
	AspectMaintain AspectMode = iota
	AspectStretch
)

func (m AspectMode) String() string {
	switch m {
	case AspectStretch:
		return "stretch"
	default:
		return "maintain"
	}
}

// ParseAspectMode accepts "maintain" or "stretch"; empty means maintain.
func ParseAspectMode(s string) (AspectMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "maintain":
		return AspectMaintain, nil
	case "stretch":
		return AspectStretch, nil
	}
	return AspectMaintain, fmt.Errorf("unknown aspect mode %q (use maintain or stretch)", s)
}

// FitRect places a frame of size src inside bounds. Stretch fills bounds;
// Maintain keeps the source ratio and centers the result.
func FitRect(src, bounds Size, mode AspectMode) Rect {
	if src.Empty() || bounds.Empty() {
		return Rect{}
	}
	if mode == AspectStretch {
		return RectAt(Point{}, bounds)
	}

	scale := float64(bounds.Width) / float64(src.Width)
	if sy := float64(bounds.Height) / float64(src.Height); sy < scale {
		scale = sy
	}
	w := int(float64(src.Width) * scale)
	h := int(float64(src.Height) * scale)
	origin := Point{X: (bounds.Width - w) / 2, Y: (bounds.Height - h) / 2}
	return RectAt(origin, Size{Width: w, Height: h})
}
