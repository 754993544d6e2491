//go:build windows

package capture

import (
	"fmt"
	"image"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")
	gdi32  = windows.NewLazySystemDLL("gdi32.dll")

	procGetDC              = user32.NewProc("GetDC")
	procReleaseDC          = user32.NewProc("ReleaseDC")
	procGetWindowRect      = user32.NewProc("GetWindowRect")
	procPrintWindow        = user32.NewProc("PrintWindow")
	procIsWindow           = user32.NewProc("IsWindow")
	procCreateCompatibleDC = gdi32.NewProc("CreateCompatibleDC")
	procCreateDIBSection   = gdi32.NewProc("CreateDIBSection")
	procSelectObject       = gdi32.NewProc("SelectObject")
	procDeleteObject       = gdi32.NewProc("DeleteObject")
	procDeleteDC           = gdi32.NewProc("DeleteDC")
	procGdiFlush           = gdi32.NewProc("GdiFlush")
)

const (
	pwRenderFullContent = 0x00000002
	biRGB               = 0
	dibRGBColors        = 0
)

type bitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

type winRect struct {
	Left, Top, Right, Bottom int32
}

// GDIGrabber renders whole windows, frame included, with PrintWindow so
// occluded windows still capture. GetWindowRect is virtualized to logical
// pixels for this process, so it is reported as the frame bounds as is and
// Session crops the result against the DPI-corrected window rectangle.
type GDIGrabber struct {
	mu sync.Mutex
}

// NewGDIGrabber verifies user32 and gdi32 are loadable.
func NewGDIGrabber() (*GDIGrabber, error) {
	if err := user32.Load(); err != nil {
		return nil, fmt.Errorf("%w: user32.dll: %v", ErrCaptureInit, err)
	}
	if err := gdi32.Load(); err != nil {
		return nil, fmt.Errorf("%w: gdi32.dll: %v", ErrCaptureInit, err)
	}
	return &GDIGrabber{}, nil
}

// Name returns the grabber name
func (g *GDIGrabber) Name() string { return "gdi" }

func (g *GDIGrabber) Close() error { return nil }

// Grab renders h into a top-down 32-bpp DIB section.
func (g *GDIGrabber) Grab(h window.Handle) (Frame, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	hwnd := uintptr(h)
	if r, _, _ := procIsWindow.Call(hwnd); r == 0 {
		return Frame{}, fmt.Errorf("%w: %s", window.ErrWindowGone, h)
	}

	var rc winRect
	if r, _, _ := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&rc))); r == 0 {
		return Frame{}, fmt.Errorf("%w: GetWindowRect %s", window.ErrWindowGone, h)
	}
	width, height := int(rc.Right-rc.Left), int(rc.Bottom-rc.Top)
	if width <= 0 || height <= 0 {
		return Frame{}, fmt.Errorf("window %s has empty bounds", h)
	}

	hdcScreen, _, _ := procGetDC.Call(0)
	if hdcScreen == 0 {
		return Frame{}, fmt.Errorf("GetDC failed")
	}
	defer procReleaseDC.Call(0, hdcScreen)

	hdcMem, _, _ := procCreateCompatibleDC.Call(hdcScreen)
	if hdcMem == 0 {
		return Frame{}, fmt.Errorf("CreateCompatibleDC failed")
	}
	defer procDeleteDC.Call(hdcMem)

	bi := bitmapInfoHeader{
		Size:        uint32(unsafe.Sizeof(bitmapInfoHeader{})),
		Width:       int32(width),
		Height:      -int32(height),
		Planes:      1,
		BitCount:    32,
		Compression: biRGB,
	}
	var bits unsafe.Pointer
	hbm, _, _ := procCreateDIBSection.Call(hdcScreen, uintptr(unsafe.Pointer(&bi)), dibRGBColors, uintptr(unsafe.Pointer(&bits)), 0, 0)
	if hbm == 0 || bits == nil {
		return Frame{}, fmt.Errorf("CreateDIBSection failed")
	}
	defer procDeleteObject.Call(hbm)

	old, _, _ := procSelectObject.Call(hdcMem, hbm)
	defer procSelectObject.Call(hdcMem, old)

	if r, _, _ := procPrintWindow.Call(hwnd, hdcMem, pwRenderFullContent); r == 0 {
		return Frame{}, fmt.Errorf("PrintWindow %s failed", h)
	}
	procGdiFlush.Call()

	n := width * height * 4
	src := unsafe.Slice((*byte)(bits), n)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < n; i += 4 {
		img.Pix[i] = src[i+2]
		img.Pix[i+1] = src[i+1]
		img.Pix[i+2] = src[i]
		img.Pix[i+3] = 255
	}

	size := geometry.Size{Width: width, Height: height}
	return Frame{
		Image:    img,
		Size:     size,
		Bounds:   geometry.RectAt(geometry.Point{X: int(rc.Left), Y: int(rc.Top)}, size),
		Captured: time.Now(),
	}, nil
}
