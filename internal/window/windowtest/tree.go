// Package windowtest provides an in-memory window tree implementing
// window.Directory and window.Dispatcher for tests.
package windowtest

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

// Sent records one dispatched event.
type Sent struct {
	Handle  window.Handle
	Kind    window.EventKind
	Buttons window.Buttons
	Point   geometry.Point
}

type entry struct {
	node     window.Node
	parent   window.Handle
	client   geometry.Rect
	frame    geometry.Rect
	children []window.Handle
	dpi      int
	gone     bool
	topLevel bool
}

// Tree is a mutable fake window hierarchy. Geometry is expressed in screen
// coordinates. All methods are safe for concurrent use.
type Tree struct {
	mu       sync.Mutex
	windows  map[window.Handle]*entry
	order    []window.Handle
	focused  window.Handle
	sent     []Sent
	focusLog []window.Handle

	// ChildQueries counts Children calls per handle.
	ChildQueries map[window.Handle]int
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{
		windows:      make(map[window.Handle]*entry),
		ChildQueries: make(map[window.Handle]int),
	}
}

// AddTopLevel registers a top-level window whose frame equals its client
// area.
func (t *Tree) AddTopLevel(n window.Node, client geometry.Rect) {
	t.AddFramedTopLevel(n, client, client)
}

// AddFramedTopLevel registers a top-level window with a separate frame.
func (t *Tree) AddFramedTopLevel(n window.Node, client, frame geometry.Rect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.windows[n.Handle] = &entry{node: n, client: client, frame: frame, topLevel: true}
	t.order = append(t.order, n.Handle)
}

// AddChild registers n as the last child of parent.
func (t *Tree) AddChild(parent window.Handle, n window.Node, client geometry.Rect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.windows[n.Handle] = &entry{node: n, parent: parent, client: client, frame: client}
	if p, ok := t.windows[parent]; ok {
		p.children = append(p.children, n.Handle)
	}
}

// Destroy marks h as gone; further queries on it fail with ErrWindowGone.
func (t *Tree) Destroy(h window.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.windows[h]; ok {
		e.gone = true
	}
}

// Resize replaces the client (and frame) rectangle of h.
func (t *Tree) Resize(h window.Handle, client geometry.Rect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.windows[h]; ok {
		left := e.client.Left - e.frame.Left
		top := e.client.Top - e.frame.Top
		right := e.frame.Right - e.client.Right
		bottom := e.frame.Bottom - e.client.Bottom
		e.client = client
		e.frame = geometry.Rect{
			Left:   client.Left - left,
			Top:    client.Top - top,
			Right:  client.Right + right,
			Bottom: client.Bottom + bottom,
		}
	}
}

// SetDPI treats the frame of h as physical pixels at dpi. WindowRect then
// reports it divided by the DPI scale, as the Win32 backend does for DWM
// frame bounds.
func (t *Tree) SetDPI(h window.Handle, dpi int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.windows[h]; ok {
		e.dpi = dpi
	}
}

// SetFocus makes h the focused window.
func (t *Tree) SetFocus(h window.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.focused = h
}

// Sent returns a copy of all dispatched events in order.
func (t *Tree) Sent() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Sent, len(t.sent))
	copy(out, t.sent)
	return out
}

// SentTo returns the events delivered to h.
func (t *Tree) SentTo(h window.Handle) []Sent {
	var out []Sent
	for _, s := range t.Sent() {
		if s.Handle == h {
			out = append(out, s)
		}
	}
	return out
}

// FocusRequests returns every handle passed to Focus.
func (t *Tree) FocusRequests() []window.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]window.Handle, len(t.focusLog))
	copy(out, t.focusLog)
	return out
}

// Reset clears recorded events, focus requests and query counters.
func (t *Tree) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
	t.focusLog = nil
	t.ChildQueries = make(map[window.Handle]int)
}

// ChildQueryCount returns how often Children was called for h.
func (t *Tree) ChildQueryCount(h window.Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ChildQueries[h]
}

func (t *Tree) live(h window.Handle) (*entry, error) {
	e, ok := t.windows[h]
	if !ok || e.gone {
		return nil, fmt.Errorf("%w: %s", window.ErrWindowGone, h)
	}
	return e, nil
}

func (t *Tree) TopLevel() ([]window.Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []window.Node
	for _, h := range t.order {
		if e := t.windows[h]; e != nil && !e.gone {
			out = append(out, e.node)
		}
	}
	return out, nil
}

func (t *Tree) Children(h window.Handle) ([]window.Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ChildQueries[h]++
	e, err := t.live(h)
	if err != nil {
		return nil, err
	}
	out := make([]window.Node, 0, len(e.children))
	for _, c := range e.children {
		// Destroyed children still appear in a stale listing so callers
		// exercise the gone-mid-walk path.
		out = append(out, t.windows[c].node)
	}
	return out, nil
}

func (t *Tree) WindowRect(h window.Handle) (geometry.Rect, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.live(h)
	if err != nil {
		return geometry.Rect{}, err
	}
	return geometry.ToLogical(e.frame, e.dpi), nil
}

func (t *Tree) ClientRectInScreen(h window.Handle) (geometry.Rect, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.live(h)
	if err != nil {
		return geometry.Rect{}, err
	}
	return e.client, nil
}

func (t *Tree) Exists(h window.Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.live(h)
	return err == nil
}

func (t *Tree) HasFocus(h window.Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.focused == h
}

func (t *Tree) Focus(h window.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.focusLog = append(t.focusLog, h)
	if _, err := t.live(h); err != nil {
		return err
	}
	t.focused = h
	return nil
}

func (t *Tree) Send(h window.Handle, kind window.EventKind, buttons window.Buttons, p geometry.Point) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.live(h); err != nil {
		return err
	}
	t.sent = append(t.sent, Sent{Handle: h, Kind: kind, Buttons: buttons, Point: p})
	return nil
}
