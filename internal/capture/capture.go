// Package capture owns the frame pool, swap chain and presentation surface
// that stream one source window into the mirror.
package capture

import (
	"errors"
	"image"
	"time"

	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

var (
	// ErrSessionClosed is returned by every Session operation except Close
	// once the session has been closed.
	ErrSessionClosed = errors.New("capture session closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("capture session already started")

	// ErrSurfaceExists is returned when CreateSurface is called twice.
	ErrSurfaceExists = errors.New("capture surface already created")

	// ErrCaptureInit wraps platform failures while setting up capture.
	ErrCaptureInit = errors.New("capture initialization failed")
)

// Frame is one captured image of the source window. Bounds is the logical
// screen rectangle the image covers; Size is the content size at capture
// time.
type Frame struct {
	Image    *image.RGBA
	Size     geometry.Size
	Bounds   geometry.Rect
	Captured time.Time
}

// Target is a window that can be captured, sized at creation time.
type Target struct {
	Handle window.Handle
	Size   geometry.Size
}

// Device creates capture resources for a target.
type Device interface {
	CreateTarget(h window.Handle) (Target, error)
	CreateFramePool(target Target, size geometry.Size) (FramePool, error)
	CreateSwapChain(size geometry.Size) (SwapChain, error)
}

// FramePool produces frames asynchronously. It keeps only the newest frame:
// TryGetNextFrame hands it out once and older unread frames are dropped.
type FramePool interface {
	Size() geometry.Size
	// Recreate resizes the pool's buffers.
	Recreate(size geometry.Size) error
	TryGetNextFrame() (Frame, bool)
	// Start begins capture; onArrived is called from the pool's goroutine.
	Start(onArrived func()) error
	Close() error
}

// SwapChain holds the back buffer frames are blitted into before they are
// presented on a bound surface.
type SwapChain interface {
	Size() geometry.Size
	ResizeBuffers(size geometry.Size) error
	// Blit copies box (frame-local) of frame into the back buffer.
	Blit(frame Frame, box geometry.Rect) error
	Present() error
	Bind(s Surface) error
	Close() error
}

// Compositor creates displayable surfaces.
type Compositor interface {
	CreateSurface() (Surface, error)
}

// Surface displays presented back buffers. img is only valid for the
// duration of Present.
type Surface interface {
	Present(img *image.RGBA) error
	Close() error
}

// State is the lifecycle of a Session.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "uninitialized"
}
