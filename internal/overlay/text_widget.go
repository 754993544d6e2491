package overlay

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	lineHeight  = 13 // basicfont.Face7x13
	baseline    = 10
	padding     = 4
	lineSpacing = 2
	opacity     = 0.85
)

var (
	textColor = color.RGBA{255, 255, 255, 255}
	bgColor   = color.RGBA{0, 0, 0, 180}
)

// TextWidget displays text produced by a callback on each frame. Lines are
// split on "\n".
type TextWidget struct {
	id    string
	text  func() string
	scale float64
}

// NewTextWidget creates a text widget. scale multiplies the 7x13 bitmap font;
// values below 1 are clamped to 1.
func NewTextWidget(id string, scale float64, text func() string) *TextWidget {
	if scale < 1 {
		scale = 1
	}
	return &TextWidget{id: id, text: text, scale: scale}
}

func (w *TextWidget) ID() string { return w.id }

// Render draws the label on a translucent backing box.
func (w *TextWidget) Render(img *image.RGBA, at image.Point) (image.Rectangle, error) {
	if w.text == nil {
		return image.Rectangle{}, nil
	}
	text := w.text()
	if text == "" {
		return image.Rectangle{}, nil
	}

	label := renderLabel(strings.Split(text, "\n"))
	if w.scale != 1 {
		b := label.Bounds()
		scaled := image.NewRGBA(image.Rect(0, 0, int(float64(b.Dx())*w.scale), int(float64(b.Dy())*w.scale)))
		draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), label, b, draw.Src, nil)
		label = scaled
	}

	BlendImage(img, label, at.X, at.Y, opacity)
	return label.Bounds().Add(at).Intersect(img.Bounds()), nil
}

// renderLabel draws lines at 1x onto a padded, filled image.
func renderLabel(lines []string) *image.RGBA {
	d := &font.Drawer{Face: basicfont.Face7x13}

	width := 0
	for _, line := range lines {
		if px := d.MeasureString(line).Ceil(); px > width {
			width = px
		}
	}
	height := len(lines)*lineHeight + (len(lines)-1)*lineSpacing

	label := image.NewRGBA(image.Rect(0, 0, width+padding*2, height+padding*2))
	draw.Draw(label, label.Bounds(), image.NewUniform(bgColor), image.Point{}, draw.Src)

	d.Dst = label
	d.Src = image.NewUniform(textColor)
	for i, line := range lines {
		y := padding + i*(lineHeight+lineSpacing) + baseline
		d.Dot = fixed.Point26_6{X: fixed.I(padding), Y: fixed.I(y)}
		d.DrawString(line)
	}
	return label
}
