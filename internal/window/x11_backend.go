//go:build linux

package window

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/logger"
)

// X11Backend implements Backend on top of an X server connection.
type X11Backend struct {
	xu        *xgbutil.XUtil
	root      xproto.Window
	processes *processNames
}

// NewX11Backend connects to $DISPLAY.
func NewX11Backend() (*X11Backend, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	return &X11Backend{
		xu:        xu,
		root:      xu.RootWin(),
		processes: newProcessNames(),
	}, nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.xu.Conn().Close()
	return nil
}

// XUtil exposes the shared connection to the X11 capture and display code.
func (b *X11Backend) XUtil() *xgbutil.XUtil {
	return b.xu
}

// TopLevel lists managed client windows using EWMH _NET_CLIENT_LIST, falling
// back to the root window's children.
func (b *X11Backend) TopLevel() ([]Node, error) {
	log := logger.WithComponent("x11-backend")

	ids, err := ewmh.ClientListGet(b.xu)
	if err != nil || len(ids) == 0 {
		log.Debug().Err(err).Msg("TopLevel: EWMH client list unavailable, falling back to QueryTree")
		tree, qerr := xproto.QueryTree(b.xu.Conn(), b.root).Reply()
		if qerr != nil {
			return nil, fmt.Errorf("failed to query root tree: %w", qerr)
		}
		ids = tree.Children
	}

	nodes := make([]Node, 0, len(ids))
	skipped := 0
	for _, id := range ids {
		if !b.viewable(id) {
			skipped++
			continue
		}
		n := b.node(id)
		if n.Title == "" && n.Class == "" {
			skipped++
			continue
		}
		if b.isUtilityWindow(id) {
			skipped++
			continue
		}
		nodes = append(nodes, n)
	}

	log.Debug().
		Int("found", len(nodes)).
		Int("skipped", skipped).
		Msg("TopLevel: summary")
	return nodes, nil
}

// Children lists mapped direct children of h.
func (b *X11Backend) Children(h Handle) ([]Node, error) {
	tree, err := xproto.QueryTree(b.xu.Conn(), xproto.Window(h)).Reply()
	if err != nil {
		return nil, fmt.Errorf("%w: query tree %s: %v", ErrWindowGone, h, err)
	}

	nodes := make([]Node, 0, len(tree.Children))
	for _, child := range tree.Children {
		if !b.viewable(child) {
			continue
		}
		nodes = append(nodes, b.node(child))
	}
	return nodes, nil
}

// ClientRectInScreen returns the window's drawable area translated to root
// coordinates. X11 reports logical pixels, so no DPI correction applies.
func (b *X11Backend) ClientRectInScreen(h Handle) (geometry.Rect, error) {
	win := xproto.Window(h)
	geom, err := xproto.GetGeometry(b.xu.Conn(), xproto.Drawable(win)).Reply()
	if err != nil {
		return geometry.Rect{}, fmt.Errorf("%w: geometry %s: %v", ErrWindowGone, h, err)
	}

	origin, err := xproto.TranslateCoordinates(b.xu.Conn(), win, b.root, 0, 0).Reply()
	if err != nil {
		return geometry.Rect{}, fmt.Errorf("%w: translate %s: %v", ErrWindowGone, h, err)
	}

	return geometry.RectAt(
		geometry.Point{X: int(origin.DstX), Y: int(origin.DstY)},
		geometry.Size{Width: int(geom.Width), Height: int(geom.Height)},
	), nil
}

// WindowRect grows the client rect by the window manager's frame extents.
func (b *X11Backend) WindowRect(h Handle) (geometry.Rect, error) {
	r, err := b.ClientRectInScreen(h)
	if err != nil {
		return geometry.Rect{}, err
	}

	extents, err := ewmh.FrameExtentsGet(b.xu, xproto.Window(h))
	if err != nil {
		return r, nil
	}
	return geometry.Rect{
		Left:   r.Left - extents.Left,
		Top:    r.Top - extents.Top,
		Right:  r.Right + extents.Right,
		Bottom: r.Bottom + extents.Bottom,
	}, nil
}

// Exists checks that the window id still resolves.
func (b *X11Backend) Exists(h Handle) bool {
	_, err := xproto.GetWindowAttributes(b.xu.Conn(), xproto.Window(h)).Reply()
	return err == nil
}

// HasFocus compares h with both the EWMH active window and the X input focus.
func (b *X11Backend) HasFocus(h Handle) bool {
	if active, err := ewmh.ActiveWindowGet(b.xu); err == nil && Handle(active) == h {
		return true
	}
	focus, err := xproto.GetInputFocus(b.xu.Conn()).Reply()
	if err != nil {
		return false
	}
	return Handle(focus.Focus) == h
}

// Focus asks the window manager to activate h.
func (b *X11Backend) Focus(h Handle) error {
	if !b.Exists(h) {
		return fmt.Errorf("%w: %s", ErrWindowGone, h)
	}
	if err := ewmh.ActiveWindowReq(b.xu, xproto.Window(h)); err != nil {
		return fmt.Errorf("failed to request activation of %s: %w", h, err)
	}
	return nil
}

// Send synthesizes a MotionNotify, ButtonPress or ButtonRelease on h.
// Double clicks are sent as two press/release pairs.
func (b *X11Backend) Send(h Handle, kind EventKind, buttons Buttons, p geometry.Point) error {
	win := xproto.Window(h)

	origin, err := xproto.TranslateCoordinates(b.xu.Conn(), win, b.root, int16(p.X), int16(p.Y)).Reply()
	if err != nil {
		return fmt.Errorf("%w: translate %s: %v", ErrWindowGone, h, err)
	}

	ev := xproto.ButtonPressEvent{
		Detail:     xproto.Button(kind.Button()),
		Time:       xproto.TimeCurrentTime,
		Root:       b.root,
		Event:      win,
		Child:      0,
		RootX:      origin.DstX,
		RootY:      origin.DstY,
		EventX:     int16(p.X),
		EventY:     int16(p.Y),
		State:      x11State(buttons),
		SameScreen: true,
	}

	switch {
	case kind == EventMove:
		return b.sendRaw(win, xproto.MotionNotify, xproto.EventMaskPointerMotion, ev)
	case kind.IsRelease():
		return b.sendRaw(win, xproto.ButtonRelease, xproto.EventMaskButtonRelease, ev)
	case kind == EventLeftDoubleClick || kind == EventRightDoubleClick || kind == EventMiddleDoubleClick:
		for i := 0; i < 2; i++ {
			if err := b.sendRaw(win, xproto.ButtonPress, xproto.EventMaskButtonPress, ev); err != nil {
				return err
			}
			if err := b.sendRaw(win, xproto.ButtonRelease, xproto.EventMaskButtonRelease, ev); err != nil {
				return err
			}
		}
		return nil
	default:
		return b.sendRaw(win, xproto.ButtonPress, xproto.EventMaskButtonPress, ev)
	}
}

// sendRaw serializes ev with the given event code. Pointer events share one
// wire layout, so the ButtonPress encoder serves all three.
func (b *X11Backend) sendRaw(win xproto.Window, code byte, mask uint32, ev xproto.ButtonPressEvent) error {
	if code == xproto.MotionNotify {
		ev.Detail = xproto.MotionNormal
	}
	buf := ev.Bytes()
	buf[0] = code

	err := xproto.SendEventChecked(b.xu.Conn(), false, win, mask, string(buf)).Check()
	if err != nil {
		return fmt.Errorf("failed to send event to %s: %w", Handle(win), err)
	}
	return nil
}

func x11State(buttons Buttons) uint16 {
	var state uint16
	if buttons&ButtonShift != 0 {
		state |= xproto.KeyButMaskShift
	}
	if buttons&ButtonControl != 0 {
		state |= xproto.KeyButMaskControl
	}
	if buttons&ButtonLeft != 0 {
		state |= xproto.KeyButMaskButton1
	}
	if buttons&ButtonMiddle != 0 {
		state |= xproto.KeyButMaskButton2
	}
	if buttons&ButtonRight != 0 {
		state |= xproto.KeyButMaskButton3
	}
	return state
}

func (b *X11Backend) viewable(win xproto.Window) bool {
	attrs, err := xproto.GetWindowAttributes(b.xu.Conn(), win).Reply()
	if err != nil {
		return false
	}
	return attrs.MapState == xproto.MapStateViewable
}

// isUtilityWindow filters docks, desktops and similar non-application
// windows, the X11 analogue of windows hidden from Alt-Tab.
func (b *X11Backend) isUtilityWindow(win xproto.Window) bool {
	types, err := ewmh.WmWindowTypeGet(b.xu, win)
	if err != nil {
		return false
	}
	for _, t := range types {
		switch t {
		case "_NET_WM_WINDOW_TYPE_DOCK", "_NET_WM_WINDOW_TYPE_DESKTOP",
			"_NET_WM_WINDOW_TYPE_TOOLBAR", "_NET_WM_WINDOW_TYPE_NOTIFICATION":
			return true
		}
	}
	return false
}

// node reads the title, class and owning process of win. Missing
// properties are left empty.
func (b *X11Backend) node(win xproto.Window) Node {
	n := Node{Handle: Handle(win)}

	if title, err := ewmh.WmNameGet(b.xu, win); err == nil && title != "" {
		n.Title = title
	} else if title, err := icccm.WmNameGet(b.xu, win); err == nil {
		n.Title = title
	}

	if class, err := icccm.WmClassGet(b.xu, win); err == nil && class != nil {
		n.Class = class.Class
		if n.Class == "" {
			n.Class = class.Instance
		}
	}

	if pid, err := ewmh.WmPidGet(b.xu, win); err == nil {
		n.PID = int(pid)
		n.Process = b.processes.lookup(n.PID)
	}

	return n
}
