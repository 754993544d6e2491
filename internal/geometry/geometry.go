// Package geometry converts pointer coordinates between the mirror surface,
// the source window, the screen and descendant windows.
//
// Every function is pure. The coordinate space of a Point is implied by the
// call site; nothing here records it.
package geometry

import (
	"errors"
	"fmt"
)

// ErrDegenerateScale is returned instead of a coordinate whenever a scale
// factor would be zero, negative or the result of dividing by a zero extent.
var ErrDegenerateScale = errors.New("degenerate scale")

// Point is a pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p translated by -q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Size is a pixel extent.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether either dimension is non-positive.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Rect is an axis-aligned rectangle. Left and Top are inclusive, Right and
// Bottom exclusive.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// RectAt builds a rectangle from its origin and size.
func RectAt(origin Point, size Size) Rect {
	return Rect{
		Left:   origin.X,
		Top:    origin.Y,
		Right:  origin.X + size.Width,
		Bottom: origin.Y + size.Height,
	}
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Size returns the rectangle's extent.
func (r Rect) Size() Size {
	return Size{Width: r.Width(), Height: r.Height()}
}

// Origin returns the top-left corner.
func (r Rect) Origin() Point {
	return Point{X: r.Left, Y: r.Top}
}

// Empty reports whether the rectangle contains no pixels.
func (r Rect) Empty() bool {
	return r.Left >= r.Right || r.Top >= r.Bottom
}

// Translate returns r moved by d.
func (r Rect) Translate(d Point) Rect {
	return Rect{
		Left:   r.Left + d.X,
		Top:    r.Top + d.Y,
		Right:  r.Right + d.X,
		Bottom: r.Bottom + d.Y,
	}
}

// Intersect returns the overlap of r and s, or the zero Rect when they are
// disjoint.
func (r Rect) Intersect(s Rect) Rect {
	out := Rect{
		Left:   max(r.Left, s.Left),
		Top:    max(r.Top, s.Top),
		Right:  min(r.Right, s.Right),
		Bottom: min(r.Bottom, s.Bottom),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d %dx%d]", r.Left, r.Top, r.Width(), r.Height())
}

// PointInRect is a half-open containment test: points on Left or Top are
// inside, points on Right or Bottom are outside.
func PointInRect(p Point, r Rect) bool {
	return r.Left <= p.X && p.X < r.Right && r.Top <= p.Y && p.Y < r.Bottom
}

// OffsetIntoDescendant converts p from the parent's client space into the
// child's client space. Both rectangles are client areas in screen space.
func OffsetIntoDescendant(p Point, parentClientScreenRect, childClientScreenRect Rect) Point {
	return Point{
		X: p.X - (childClientScreenRect.Left - parentClientScreenRect.Left),
		Y: p.Y - (childClientScreenRect.Top - parentClientScreenRect.Top),
	}
}
