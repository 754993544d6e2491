package geometry

// BaseDPI is the density of an unscaled display.
const BaseDPI = 96

// DPIScale returns dpi / BaseDPI, treating unknown densities as 1.
func DPIScale(dpi int) float64 {
	if dpi <= 0 {
		return 1
	}
	return float64(dpi) / BaseDPI
}

// ToLogical divides a physical-pixel rectangle by the DPI scale. Extended
// frame bounds are reported in physical pixels while client origins are
// logical, so frames must pass through here before the two are combined.
func ToLogical(r Rect, dpi int) Rect {
	s := DPIScale(dpi)
	if s == 1 {
		return r
	}
	return Rect{
		Left:   int(float64(r.Left) / s),
		Top:    int(float64(r.Top) / s),
		Right:  int(float64(r.Right) / s),
		Bottom: int(float64(r.Bottom) / s),
	}
}

// ClientBox returns the client area relative to the window frame, clipped to
// the frame. This is the crop applied to captured frames so the mirror shows
// no title bar or borders. client and frame are both screen-space and
// logical.
func ClientBox(client, frame Rect) Rect {
	box := client.Translate(Point{X: -frame.Left, Y: -frame.Top})
	return box.Intersect(RectAt(Point{}, frame.Size()))
}
