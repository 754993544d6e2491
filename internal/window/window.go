package window

import (
	"errors"
	"fmt"

	"github.com/bryanchriswhite/downscaler/internal/geometry"
)

var (
	// ErrWindowGone means the handle is invalid or the window was destroyed
	// while it was being queried.
	ErrWindowGone = errors.New("window gone")

	// ErrWindowNotFound means no live window matched a query.
	ErrWindowNotFound = errors.New("window not found")
)

// Handle is an opaque platform window identifier (an X11 window id or an
// HWND). A handle may outlive its window, so it must be re-validated before
// geometry queries.
type Handle uint64

func (h Handle) String() string {
	return fmt.Sprintf("0x%x", uint64(h))
}

// Node is a read-only snapshot of one window. Children are not stored; ask
// the Directory each time they are needed.
type Node struct {
	Handle  Handle `json:"handle"`
	Title   string `json:"title"`
	Class   string `json:"class"`
	Process string `json:"process"`
	PID     int    `json:"pid"`
}

// Directory answers live questions about the window tree.
type Directory interface {
	// TopLevel lists selectable top-level windows.
	TopLevel() ([]Node, error)

	// Children lists the direct, visible children of h. Returns
	// ErrWindowGone if h no longer exists.
	Children(h Handle) ([]Node, error)

	// WindowRect is the outer frame in logical screen pixels.
	WindowRect(h Handle) (geometry.Rect, error)

	// ClientRectInScreen is the client area in logical screen pixels.
	ClientRectInScreen(h Handle) (geometry.Rect, error)

	// Exists reports whether h still refers to a live window.
	Exists(h Handle) bool
}

// Dispatcher delivers synthesized pointer events to windows.
type Dispatcher interface {
	HasFocus(h Handle) bool
	Focus(h Handle) error
	// Send delivers an event at p, which is in h's client space.
	Send(h Handle, kind EventKind, buttons Buttons, p geometry.Point) error
}

// Backend is a platform's Directory and Dispatcher.
type Backend interface {
	Directory
	Dispatcher

	// Name returns the backend name (e.g. "x11", "win32")
	Name() string

	Close() error
}
