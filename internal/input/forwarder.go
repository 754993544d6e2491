// Package input maps pointer events from the mirror surface onto the source
// window and its descendants.
package input

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/downscaler/internal/config"
	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/logger"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

// DefaultMaxDepth bounds descendant recursion.
const DefaultMaxDepth = 64

// ErrSourceWindowLost means the source window disappeared while an event was
// being forwarded.
var ErrSourceWindowLost = errors.New("source window lost")

// State is the mirror state the forwarder reads on every event.
type State interface {
	Source() window.Handle
	Factors() geometry.ScaleFactors
	MirrorSize() geometry.Size
}

// PointerEvent is a pointer action in mirror-local pixels.
type PointerEvent struct {
	X       int              `json:"x"`
	Y       int              `json:"y"`
	Kind    window.EventKind `json:"-"`
	Buttons window.Buttons   `json:"buttons"`
}

// Coordinates is the last pointer position in every space.
type Coordinates struct {
	// Local is relative to the mirror surface.
	Local geometry.Point `json:"local"`
	// Source is relative to the source window's client area.
	Source geometry.Point `json:"source"`
	// Absolute is the screen position on the source window.
	Absolute geometry.Point `json:"absolute"`
	// Inside reports whether Local lies on the mirror surface.
	Inside bool `json:"inside"`
	// PercentX and PercentY locate Local as a fraction of the mirror size.
	PercentX float64   `json:"percent_x"`
	PercentY float64   `json:"percent_y"`
	At       time.Time `json:"at"`
}

// Forwarder dispatches mirror pointer input to the source window.
type Forwarder struct {
	dir      window.Directory
	disp     window.Dispatcher
	state    State
	enabled  bool
	throttle time.Duration
	maxDepth int
	log      zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	last     Coordinates
	hasLast  bool
	lastMove time.Time
	held     window.Buttons
}

// NewForwarder creates a forwarder configured by cfg.Input.
func NewForwarder(cfg *config.Config, dir window.Directory, disp window.Dispatcher, state State) *Forwarder {
	depth := cfg.Input.MaxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	return &Forwarder{
		dir:      dir,
		disp:     disp,
		state:    state,
		enabled:  cfg.Input.Enabled,
		throttle: time.Duration(cfg.Input.MoveThrottleMS) * time.Millisecond,
		maxDepth: depth,
		log:      *logger.WithComponent("input-forwarder"),
		now:      time.Now,
	}
}

// LastPointer returns the most recent coordinates record.
func (f *Forwarder) LastPointer() (Coordinates, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.hasLast
}

// Handle records ev's position and, for button events, forwards the event.
func (f *Forwarder) Handle(ev PointerEvent) error {
	local := geometry.Point{X: ev.X, Y: ev.Y}
	if ev.Kind == window.EventMove {
		return f.HandlePointerMove(local)
	}
	if _, err := f.record(local); err != nil {
		return err
	}
	return f.ForwardScaledEvent(ev.Kind, ev.Buttons)
}

// HandlePointerMove records local in every coordinate space and sends a move
// to the source window. Moves are throttled and never sent to descendants.
// Points outside the mirror are recorded but not forwarded.
func (f *Forwarder) HandlePointerMove(local geometry.Point) error {
	rec, err := f.record(local)
	if err != nil {
		return err
	}
	if !f.enabled || !rec.Inside {
		return nil
	}

	f.mu.Lock()
	if f.throttle > 0 && !f.lastMove.IsZero() && rec.At.Sub(f.lastMove) < f.throttle {
		f.mu.Unlock()
		return nil
	}
	f.lastMove = rec.At
	held := f.held
	f.mu.Unlock()

	source := f.state.Source()
	if err := f.disp.Send(source, window.EventMove, held, rec.Source); err != nil {
		return f.sourceError(source, err)
	}
	return nil
}

// record maps local into source and screen space and stores the result.
func (f *Forwarder) record(local geometry.Point) (Coordinates, error) {
	source := f.state.Source()
	size := f.state.MirrorSize()

	mapped, err := geometry.ScaleToSource(local, f.state.Factors())
	if err != nil {
		return Coordinates{}, err
	}

	client, err := f.dir.ClientRectInScreen(source)
	if err != nil {
		return Coordinates{}, f.sourceError(source, err)
	}

	rec := Coordinates{
		Local:    local,
		Source:   mapped,
		Absolute: client.Origin().Add(mapped),
		Inside:   geometry.PointInRect(local, geometry.RectAt(geometry.Point{}, size)),
		At:       f.now(),
	}
	if !size.Empty() {
		rec.PercentX = float64(local.X) / float64(size.Width)
		rec.PercentY = float64(local.Y) / float64(size.Height)
	}

	f.mu.Lock()
	f.last = rec
	f.hasLast = true
	f.mu.Unlock()
	return rec, nil
}

// ForwardScaledEvent sends kind at the last recorded position to the source
// window, focusing it first if needed, then to every descendant whose client
// area contains the point.
func (f *Forwarder) ForwardScaledEvent(kind window.EventKind, buttons window.Buttons) error {
	if !f.enabled {
		return nil
	}

	f.mu.Lock()
	rec, ok := f.last, f.hasLast
	f.mu.Unlock()
	if !ok {
		f.log.Debug().Str("kind", kind.String()).Msg("No pointer position recorded, dropping event")
		return nil
	}
	if !rec.Inside {
		return nil
	}

	source := f.state.Source()

	if !f.disp.HasFocus(source) {
		if err := f.disp.Focus(source); err != nil {
			if errors.Is(err, window.ErrWindowGone) {
				return f.sourceError(source, err)
			}
			f.log.Warn().Err(err).Str("window", source.String()).Msg("Failed to focus source window")
		}
	}

	if err := f.disp.Send(source, kind, buttons, rec.Source); err != nil {
		return f.sourceError(source, err)
	}
	f.trackButtons(kind)

	parentRect, err := f.dir.ClientRectInScreen(source)
	if err != nil {
		return f.sourceError(source, err)
	}

	n := f.forwardToDescendantsAt(source, parentRect, rec.Source, kind, buttons, 0)

	f.log.Debug().
		Str("kind", kind.String()).
		Str("local", rec.Local.String()).
		Str("source", rec.Source.String()).
		Int("descendants", n).
		Msg("Forwarded pointer event")
	return nil
}

// forwardToDescendantsAt dispatches to each child of parent whose client
// area contains p (parent client space), then recurses into every child
// whether or not it was hit. Children are enumerated fresh on every call.
// Windows that vanish mid-walk are skipped along with their subtree. It
// returns the number of descendants the event was delivered to.
func (f *Forwarder) forwardToDescendantsAt(parent window.Handle, parentRect geometry.Rect, p geometry.Point, kind window.EventKind, buttons window.Buttons, depth int) int {
	if depth >= f.maxDepth {
		f.log.Debug().Str("window", parent.String()).Int("depth", depth).Msg("Descendant depth limit reached")
		return 0
	}

	children, err := f.dir.Children(parent)
	if err != nil {
		return 0
	}

	delivered := 0
	for _, child := range children {
		childRect, err := f.dir.ClientRectInScreen(child.Handle)
		if err != nil {
			f.log.Debug().Err(err).Str("window", child.Handle.String()).Msg("Skipping descendant")
			continue
		}

		local := geometry.OffsetIntoDescendant(p, parentRect, childRect)
		if geometry.PointInRect(local, geometry.RectAt(geometry.Point{}, childRect.Size())) {
			err := f.disp.Send(child.Handle, kind, buttons, local)
			switch {
			case errors.Is(err, window.ErrWindowGone):
				f.log.Debug().Err(err).Str("window", child.Handle.String()).Msg("Skipping descendant")
				continue
			case err != nil:
				f.log.Debug().Err(err).Str("window", child.Handle.String()).Msg("Failed to dispatch to descendant")
			default:
				delivered++
			}
		}

		delivered += f.forwardToDescendantsAt(child.Handle, childRect, local, kind, buttons, depth+1)
	}
	return delivered
}

func (f *Forwarder) trackButtons(kind window.EventKind) {
	var b window.Buttons
	switch kind.Button() {
	case 1:
		b = window.ButtonLeft
	case 2:
		b = window.ButtonMiddle
	case 3:
		b = window.ButtonRight
	default:
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case kind.IsRelease():
		f.held &^= b
	case kind == window.EventLeftDown || kind == window.EventRightDown || kind == window.EventMiddleDown:
		f.held |= b
	}
}

// sourceError converts a vanished source into ErrSourceWindowLost.
func (f *Forwarder) sourceError(source window.Handle, err error) error {
	if errors.Is(err, window.ErrWindowGone) {
		return fmt.Errorf("%w: %s: %v", ErrSourceWindowLost, source, err)
	}
	return err
}
