// Package display shows the mirror in a native window and feeds pointer
// input on that window back to the mirror controller.
package display

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/bryanchriswhite/downscaler/internal/window"
)

// ErrUnsupported is returned on platforms without a display backend.
var ErrUnsupported = errors.New("mirror window not supported on this platform")

// DoubleClickInterval is the longest gap between two presses of the same
// button that still counts as a double click.
const DoubleClickInterval = 400 * time.Millisecond

// PixmapFormat describes how the server lays out a ZPixmap scanline.
type PixmapFormat struct {
	Depth        uint8
	BitsPerPixel uint8
	ScanlinePad  uint8
}

// Stride returns the padded scanline length for width pixels.
func (f PixmapFormat) Stride(width int) int {
	unpadded := width * int(f.BitsPerPixel) / 8
	pad := int(f.ScanlinePad) / 8
	if pad == 0 {
		return unpadded
	}
	return (unpadded + pad - 1) / pad * pad
}

// ZPixmap converts rows [y0, y1) of img into the server's BGR(x) layout.
func ZPixmap(img *image.RGBA, f PixmapFormat, y0, y1 int) ([]byte, error) {
	bpp := int(f.BitsPerPixel) / 8
	if bpp != 3 && bpp != 4 {
		return nil, fmt.Errorf("unsupported bytes per pixel: %d", bpp)
	}

	b := img.Bounds()
	width := b.Dx()
	stride := f.Stride(width)
	data := make([]byte, stride*(y1-y0))

	for y := y0; y < y1; y++ {
		src := img.Pix[(y-b.Min.Y)*img.Stride:]
		dst := data[(y-y0)*stride:]
		for x := 0; x < width; x++ {
			s := src[x*4 : x*4+4]
			d := dst[x*bpp:]
			d[0], d[1], d[2] = s[2], s[1], s[0]
			if bpp == 4 && f.Depth == 32 {
				d[3] = s[3]
			}
		}
	}
	return data, nil
}

// clickTracker turns repeated presses into double clicks.
type clickTracker struct {
	button int
	at     time.Time
}

// press returns the event kind for a press of button (1 left, 2 middle,
// 3 right) at t, or false for buttons that are not forwarded.
func (c *clickTracker) press(button int, t time.Time) (window.EventKind, bool) {
	double := c.button == button && !c.at.IsZero() && t.Sub(c.at) <= DoubleClickInterval
	if double {
		c.at = time.Time{}
	} else {
		c.button, c.at = button, t
	}

	switch button {
	case 1:
		if double {
			return window.EventLeftDoubleClick, true
		}
		return window.EventLeftDown, true
	case 2:
		if double {
			return window.EventMiddleDoubleClick, true
		}
		return window.EventMiddleDown, true
	case 3:
		if double {
			return window.EventRightDoubleClick, true
		}
		return window.EventRightDown, true
	}
	return window.EventMove, false
}

func release(button int) (window.EventKind, bool) {
	switch button {
	case 1:
		return window.EventLeftUp, true
	case 2:
		return window.EventMiddleUp, true
	case 3:
		return window.EventRightUp, true
	}
	return window.EventMove, false
}

// buttonMask returns the held-button bit for an X11 button number.
func buttonMask(button int) window.Buttons {
	switch button {
	case 1:
		return window.ButtonLeft
	case 2:
		return window.ButtonMiddle
	case 3:
		return window.ButtonRight
	}
	return 0
}

// X11 key/button state bits.
const (
	stateShift   = 1 << 0
	stateControl = 1 << 2
	stateButton1 = 1 << 8
	stateButton2 = 1 << 9
	stateButton3 = 1 << 10
)

// buttonsFromState maps an X11 state mask onto held buttons.
func buttonsFromState(state uint16) window.Buttons {
	var b window.Buttons
	if state&stateButton1 != 0 {
		b |= window.ButtonLeft
	}
	if state&stateButton2 != 0 {
		b |= window.ButtonMiddle
	}
	if state&stateButton3 != 0 {
		b |= window.ButtonRight
	}
	if state&stateShift != 0 {
		b |= window.ButtonShift
	}
	if state&stateControl != 0 {
		b |= window.ButtonControl
	}
	return b
}
