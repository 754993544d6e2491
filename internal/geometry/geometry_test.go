package geometry

import (
	"errors"
	"testing"
)

func TestScaleToSourceHalvedMirror(t *testing.T) {
	f, err := NewScaleFactors(Size{1920, 1080}, Size{960, 540})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := ScaleToSource(Point{10, 10}, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != (Point{20, 20}) {
		t.Fatalf("expected (20,20), got %v", got)
	}
}

func TestScaleToSourceTruncates(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		f    ScaleFactors
		want Point
	}{
		{"exact", Point{4, 6}, ScaleFactors{1.5, 1.5}, Point{6, 9}},
		{"drops fraction", Point{3, 5}, ScaleFactors{1.5, 1.5}, Point{4, 7}},
		{"just below integer", Point{10, 10}, ScaleFactors{1.99, 1.99}, Point{19, 19}},
		{"negative toward zero", Point{-3, -5}, ScaleFactors{1.5, 1.5}, Point{-4, -7}},
		{"independent axes", Point{100, 100}, ScaleFactors{2, 0.5}, Point{200, 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScaleToSource(tt.p, tt.f)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRoundTripWithinOnePixel(t *testing.T) {
	// Mirrors are never larger than the source in these cases; mapping a
	// mirror pixel to the source and back loses at most one pixel.
	cases := []struct {
		source, mirror Size
	}{
		{Size{1920, 1080}, Size{960, 540}},
		{Size{1920, 1080}, Size{1280, 720}},
		{Size{2560, 1440}, Size{1000, 333}},
		{Size{1366, 768}, Size{1366, 768}},
		{Size{3840, 2160}, Size{777, 431}},
	}
	for _, c := range cases {
		toSource, err := NewScaleFactors(c.source, c.mirror)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		toMirror, err := NewScaleFactors(c.mirror, c.source)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for x := 0; x < c.mirror.Width; x += 7 {
			for y := 0; y < c.mirror.Height; y += 11 {
				p := Point{x, y}
				s, _ := ScaleToSource(p, toSource)
				back, _ := ScaleToSource(s, toMirror)
				if dx, dy := back.X-p.X, back.Y-p.Y; dx < -1 || dx > 1 || dy < -1 || dy > 1 {
					t.Fatalf("source %s mirror %s: %v -> %v -> %v drifted more than one pixel",
						c.source, c.mirror, p, s, back)
				}
			}
		}
	}
}

func TestRoundTripUpscaledWithinOneSourcePixel(t *testing.T) {
	// A mirror larger than the source maps several mirror pixels onto one
	// source pixel, so the way back lands on the first of them. The drift
	// stays under the upscale ratio and never crosses a source pixel.
	cases := []struct {
		source, mirror Size
		ratio          int
	}{
		{Size{100, 100}, Size{300, 300}, 3},
		{Size{960, 540}, Size{1920, 1080}, 2},
		{Size{640, 360}, Size{1920, 1080}, 3},
	}
	for _, c := range cases {
		toSource, _ := NewScaleFactors(c.source, c.mirror)
		toMirror, _ := NewScaleFactors(c.mirror, c.source)
		for x := 0; x < c.mirror.Width; x += 7 {
			for y := 0; y < c.mirror.Height; y += 11 {
				p := Point{x, y}
				s, _ := ScaleToSource(p, toSource)
				back, _ := ScaleToSource(s, toMirror)
				if dx, dy := p.X-back.X, p.Y-back.Y; dx < 0 || dx >= c.ratio || dy < 0 || dy >= c.ratio {
					t.Fatalf("source %s mirror %s: %v -> %v -> %v drifted by a source pixel or more",
						c.source, c.mirror, p, s, back)
				}
				if again, _ := ScaleToSource(back, toSource); again != s {
					t.Fatalf("source %s mirror %s: %v maps to %v, expected %v", c.source, c.mirror, back, again, s)
				}
			}
		}
	}
}

func TestDegenerateScale(t *testing.T) {
	sizes := []struct {
		name           string
		source, mirror Size
	}{
		{"zero mirror width", Size{1920, 1080}, Size{0, 540}},
		{"zero mirror height", Size{1920, 1080}, Size{960, 0}},
		{"zero source", Size{0, 0}, Size{960, 540}},
		{"negative mirror", Size{1920, 1080}, Size{-1, 540}},
	}
	for _, tt := range sizes {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScaleFactors(tt.source, tt.mirror)
			if !errors.Is(err, ErrDegenerateScale) {
				t.Fatalf("expected ErrDegenerateScale, got %v", err)
			}
		})
	}

	for _, f := range []ScaleFactors{{0, 1}, {1, 0}, {-2, 1}, {}} {
		if _, err := ScaleToSource(Point{1, 1}, f); !errors.Is(err, ErrDegenerateScale) {
			t.Fatalf("factors %+v: expected ErrDegenerateScale, got %v", f, err)
		}
	}
}

func TestPointInRectHalfOpen(t *testing.T) {
	r := Rect{Left: 10, Top: 20, Right: 30, Bottom: 40}
	tests := []struct {
		p    Point
		want bool
	}{
		{Point{10, 20}, true},
		{Point{29, 39}, true},
		{Point{30, 25}, false},
		{Point{15, 40}, false},
		{Point{9, 25}, false},
		{Point{15, 19}, false},
		{Point{30, 40}, false},
	}
	for _, tt := range tests {
		if got := PointInRect(tt.p, r); got != tt.want {
			t.Errorf("PointInRect(%v, %v) = %v, want %v", tt.p, r, got, tt.want)
		}
	}
}

func TestOffsetIntoDescendant(t *testing.T) {
	parent := Rect{Left: 100, Top: 50, Right: 900, Bottom: 650}
	child := Rect{Left: 150, Top: 80, Right: 350, Bottom: 280}

	got := OffsetIntoDescendant(Point{60, 40}, parent, child)
	if got != (Point{10, 10}) {
		t.Fatalf("expected (10,10), got %v", got)
	}

	// A child positioned left of its parent yields a larger local x.
	floating := Rect{Left: 80, Top: 50, Right: 120, Bottom: 90}
	got = OffsetIntoDescendant(Point{5, 5}, parent, floating)
	if got != (Point{25, 5}) {
		t.Fatalf("expected (25,5), got %v", got)
	}
}

func TestFitRect(t *testing.T) {
	tests := []struct {
		name   string
		src    Size
		bounds Size
		mode   AspectMode
		want   Rect
	}{
		{"stretch fills", Size{1920, 1080}, Size{800, 800}, AspectStretch, Rect{0, 0, 800, 800}},
		{"maintain letterbox", Size{1920, 1080}, Size{800, 800}, AspectMaintain, Rect{0, 175, 800, 625}},
		{"maintain pillarbox", Size{1000, 1000}, Size{1600, 800}, AspectMaintain, Rect{400, 0, 1200, 800}},
		{"empty source", Size{0, 10}, Size{800, 800}, AspectMaintain, Rect{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FitRect(tt.src, tt.bounds, tt.mode); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseAspectMode(t *testing.T) {
	if m, err := ParseAspectMode("Stretch"); err != nil || m != AspectStretch {
		t.Fatalf("expected stretch, got %v (%v)", m, err)
	}
	if m, err := ParseAspectMode(""); err != nil || m != AspectMaintain {
		t.Fatalf("expected maintain, got %v (%v)", m, err)
	}
	if _, err := ParseAspectMode("zoom"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestClientBoxWithDPI(t *testing.T) {
	// 150% display: frame reported in physical pixels.
	frame := ToLogical(Rect{Left: 150, Top: 300, Right: 1650, Bottom: 1350}, 144)
	if frame != (Rect{Left: 100, Top: 200, Right: 1100, Bottom: 900}) {
		t.Fatalf("unexpected logical frame %v", frame)
	}

	client := Rect{Left: 108, Top: 231, Right: 1092, Bottom: 892}
	box := ClientBox(client, frame)
	want := Rect{Left: 8, Top: 31, Right: 992, Bottom: 692}
	if box != want {
		t.Fatalf("expected %v, got %v", want, box)
	}
}

func TestClientBoxClipsToFrame(t *testing.T) {
	frame := Rect{Left: 0, Top: 0, Right: 100, Bottom: 100}
	client := Rect{Left: -10, Top: 90, Right: 50, Bottom: 150}
	if got := ClientBox(client, frame); got != (Rect{Left: 0, Top: 90, Right: 50, Bottom: 100}) {
		t.Fatalf("unexpected box %v", got)
	}
}

func TestDPIScaleDefaults(t *testing.T) {
	if DPIScale(0) != 1 || DPIScale(96) != 1 {
		t.Fatal("expected unit scale for unknown or base DPI")
	}
	if DPIScale(192) != 2 {
		t.Fatalf("expected 2, got %v", DPIScale(192))
	}
}
