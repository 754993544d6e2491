// Package mirror ties window selection, capture and input forwarding
// together for one mirror surface.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/downscaler/internal/capture"
	"github.com/bryanchriswhite/downscaler/internal/config"
	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/input"
	"github.com/bryanchriswhite/downscaler/internal/logger"
	"github.com/bryanchriswhite/downscaler/internal/overlay"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

var (
	// ErrNoSource means no source window is being mirrored.
	ErrNoSource = errors.New("no source window selected")

	// ErrControllerClosed is returned after Close.
	ErrControllerClosed = errors.New("mirror controller closed")
)

// WatchInterval is how often Run checks that the source window still exists.
const WatchInterval = time.Second

// Status is a point-in-time view of the mirror.
type Status struct {
	Active     bool                  `json:"active"`
	Source     *window.Node          `json:"source,omitempty"`
	Query      string                `json:"query,omitempty"`
	State      string                `json:"state"`
	SourceSize geometry.Size         `json:"source_size"`
	MirrorSize geometry.Size         `json:"mirror_size"`
	Factors    geometry.ScaleFactors `json:"factors"`
	Aspect     string                `json:"aspect"`
	Capture    capture.StatsSnapshot `json:"capture"`
	Pointer    *input.Coordinates    `json:"pointer,omitempty"`
}

// Controller owns the active capture session and is the only writer of the
// source size, mirror size and scale factors. The input forwarder reads them
// through the input.State methods on every event.
type Controller struct {
	cfg       *config.Config
	dir       window.Directory
	dev       capture.Device
	comp      capture.Compositor
	forwarder *input.Forwarder
	overlay   *overlay.Manager
	log       zerolog.Logger

	// active mirrors session for readers on the frame goroutine, which must
	// never take mu.
	active atomic.Pointer[capture.Session]

	mu           sync.RWMutex
	closed       bool
	source       window.Node
	hasSource    bool
	query        window.Query
	session      *capture.Session
	sourceSize   geometry.Size
	mirrorSize   geometry.Size
	factors      geometry.ScaleFactors
	mirrorPinned bool
	listeners    []ScalingListener
}

// ScalingListener is told the mirror size and aspect mode the surfaces
// should render at.
type ScalingListener func(size geometry.Size, aspect geometry.AspectMode)

// NewController wires a forwarder and, when enabled, the debug overlay. comp
// may be nil to capture without displaying.
func NewController(cfg *config.Config, dir window.Directory, disp window.Dispatcher, dev capture.Device, comp capture.Compositor) *Controller {
	c := &Controller{
		cfg:  cfg,
		dir:  dir,
		dev:  dev,
		comp: comp,
		log:  *logger.WithComponent("mirror"),
	}
	c.forwarder = input.NewForwarder(cfg, dir, disp, c)
	if cfg.Debug.Enabled {
		c.overlay = newDebugOverlay(cfg.Debug, c.captureStats, c.forwarder.LastPointer)
	}
	return c
}

// Source returns the mirrored window, or 0 when idle.
func (c *Controller) Source() window.Handle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasSource {
		return 0
	}
	return c.source.Handle
}

// Factors returns the current source/mirror ratios.
func (c *Controller) Factors() geometry.ScaleFactors {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.factors
}

// MirrorSize returns the current mirror surface size.
func (c *Controller) MirrorSize() geometry.Size {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mirrorSize
}

// Forwarder exposes the input forwarder.
func (c *Controller) Forwarder() *input.Forwarder { return c.forwarder }

// OnScaling registers fn to be told when the controller changes the mirror
// size or aspect mode itself (source change, source resize, scaling
// change). It is not called for sizes reported through MirrorResized.
func (c *Controller) OnScaling(fn ScalingListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Windows lists selectable top-level windows.
func (c *Controller) Windows() ([]window.Node, error) {
	return c.dir.TopLevel()
}

// SelectByQuery finds a window for q and mirrors it. q is kept for
// re-selection if the window is later lost.
func (c *Controller) SelectByQuery(q window.Query) (window.Node, error) {
	node, err := window.Find(c.dir, q)
	if err != nil {
		return window.Node{}, err
	}
	if err := c.selectSource(node, q); err != nil {
		return window.Node{}, err
	}
	return node, nil
}

// SelectSource mirrors node, closing any active session first. The node's
// title (or process) becomes the re-selection query.
func (c *Controller) SelectSource(node window.Node) error {
	return c.selectSource(node, queryFor(node))
}

func (c *Controller) selectSource(node window.Node, q window.Query) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	c.query = q
	err := c.selectLocked(node)
	size, aspect, listeners := c.mirrorSize, c.cfg.AspectMode(), c.listeners
	c.mu.Unlock()

	if err != nil {
		return err
	}
	notify(listeners, size, aspect)
	return nil
}

// selectLocked tears down the active session and builds one for node.
func (c *Controller) selectLocked(node window.Node) error {
	c.stopLocked()

	client, err := c.dir.ClientRectInScreen(node.Handle)
	if err != nil {
		return fmt.Errorf("select %s: %w", node.Handle, err)
	}
	sourceSize := client.Size()

	mirrorSize := c.mirrorSize
	if !c.mirrorPinned || mirrorSize.Empty() {
		mirrorSize, err = c.cfg.MirrorSize(sourceSize)
		if err != nil {
			return fmt.Errorf("select %s: %w", node.Handle, err)
		}
	}

	target, err := c.dev.CreateTarget(node.Handle)
	if err != nil {
		return fmt.Errorf("select %s: %w", node.Handle, err)
	}

	sess := capture.NewSession(c.cfg, c.dir, node.Handle)
	sess.OnResize(func(geometry.Size) { c.sourceResized(sess) })
	if c.overlay != nil {
		sess.OnFrame(func(img *image.RGBA) { c.overlay.Render(img) })
	}
	if c.comp != nil {
		if _, err := sess.CreateSurface(c.comp); err != nil {
			sess.Close()
			return fmt.Errorf("select %s: %w", node.Handle, err)
		}
	}
	if err := sess.Start(c.dev, target); err != nil {
		sess.Close()
		return fmt.Errorf("select %s: %w", node.Handle, err)
	}

	c.session = sess
	c.active.Store(sess)
	c.source = node
	c.hasSource = true
	c.sourceSize = sourceSize
	c.mirrorSize = mirrorSize
	c.updateFactorsLocked()

	c.log.Info().
		Str("window", node.Handle.String()).
		Str("title", node.Title).
		Str("process", node.Process).
		Str("source_size", sourceSize.String()).
		Str("mirror_size", mirrorSize.String()).
		Msg("Mirroring window")
	return nil
}

// SourceResized re-reads the source client size and re-derives the mirror
// size and factors.
func (c *Controller) SourceResized() error {
	sess := c.active.Load()
	if sess == nil {
		return ErrNoSource
	}
	return c.sourceResized(sess)
}

func (c *Controller) sourceResized(sess *capture.Session) error {
	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return nil
	}
	client, err := c.dir.ClientRectInScreen(sess.Source())
	if err != nil {
		c.mu.Unlock()
		c.log.Debug().Err(err).Msg("Source resized but its client rect is unavailable")
		return err
	}

	changed := false
	c.sourceSize = client.Size()
	if !c.mirrorPinned {
		if size, err := c.cfg.MirrorSize(c.sourceSize); err == nil && size != c.mirrorSize {
			c.mirrorSize = size
			changed = true
		}
	}
	err = c.updateFactorsLocked()
	size, aspect, listeners := c.mirrorSize, c.cfg.AspectMode(), c.listeners
	c.mu.Unlock()

	if changed {
		notify(listeners, size, aspect)
	}
	return err
}

// MirrorResized records a new mirror surface size reported by the display.
// Once the surface has been resized this way, source changes no longer
// resize it. A zero extent leaves forwarding suppressed until the next
// valid size.
func (c *Controller) MirrorResized(size geometry.Size) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if size == c.mirrorSize {
		return nil
	}
	c.mirrorSize = size
	c.mirrorPinned = true
	c.log.Debug().Str("mirror_size", size.String()).Msg("Mirror surface resized")
	return c.updateFactorsLocked()
}

// ApplyScaling replaces the scaling options and re-derives the mirror size.
func (c *Controller) ApplyScaling(s config.ScalingConfig) error {
	c.mu.Lock()
	candidate := *c.cfg
	candidate.Scaling = s
	if err := candidate.Validate(); err != nil {
		c.mu.Unlock()
		return err
	}

	before := c.cfg.AspectMode()
	c.cfg.Scaling = s
	c.mirrorPinned = false
	aspect := c.cfg.AspectMode()
	changed := aspect != before
	var err error
	if c.hasSource {
		var size geometry.Size
		size, err = c.cfg.MirrorSize(c.sourceSize)
		if err == nil {
			changed = changed || size != c.mirrorSize
			c.mirrorSize = size
			err = c.updateFactorsLocked()
		}
	}
	size, listeners := c.mirrorSize, c.listeners
	c.mu.Unlock()

	if changed {
		notify(listeners, size, aspect)
	}
	return err
}

func (c *Controller) updateFactorsLocked() error {
	f, err := geometry.NewScaleFactors(c.sourceSize, c.mirrorSize)
	if err != nil {
		c.factors = geometry.ScaleFactors{}
		c.log.Debug().Err(err).Msg("Forwarding suppressed")
		return err
	}
	c.factors = f
	return nil
}

// HandlePointer forwards a mirror-local pointer event. A lost source
// triggers re-selection by the last query; a degenerate scale drops the
// event.
func (c *Controller) HandlePointer(ev input.PointerEvent) error {
	c.mu.RLock()
	has := c.hasSource
	c.mu.RUnlock()
	if !has {
		return ErrNoSource
	}

	err := c.forwarder.Handle(ev)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, geometry.ErrDegenerateScale):
		return nil
	case errors.Is(err, input.ErrSourceWindowLost):
		c.log.Warn().Err(err).Msg("Source window lost")
		return c.reselect()
	}
	return err
}

// reselect looks the last query up again. When nothing matches, mirroring
// stops and the loss is reported.
func (c *Controller) reselect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	q := c.query
	node, err := window.Find(c.dir, q)
	if err != nil {
		c.stopLocked()
		c.mu.Unlock()
		c.log.Warn().Err(err).Str("query", q.Text).Msg("Stopped mirroring")
		return fmt.Errorf("%w: re-select %s: %v", input.ErrSourceWindowLost, q, err)
	}
	err = c.selectLocked(node)
	size, aspect, listeners := c.mirrorSize, c.cfg.AspectMode(), c.listeners
	c.mu.Unlock()

	if err != nil {
		return err
	}
	c.log.Info().Str("window", node.Handle.String()).Msg("Re-selected source window")
	notify(listeners, size, aspect)
	return nil
}

// Run watches the source window until ctx is done, re-selecting when it
// disappears.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.mu.RLock()
			has, h := c.hasSource, c.source.Handle
			c.mu.RUnlock()
			if !has || c.dir.Exists(h) {
				continue
			}
			if err := c.reselect(); err != nil {
				c.log.Debug().Err(err).Msg("Re-selection failed")
			}
		}
	}
}

// Stop ends mirroring but keeps the controller usable.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Controller) stopLocked() error {
	sess := c.session
	c.session = nil
	c.active.Store(nil)
	c.hasSource = false
	c.source = window.Node{}
	if sess == nil {
		return nil
	}
	return sess.Close()
}

// Close stops mirroring for good.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.stopLocked()
}

// Status reports the current mirror state.
func (c *Controller) Status() Status {
	c.mu.RLock()
	st := Status{
		Active:     c.hasSource,
		State:      capture.StateUninitialized.String(),
		SourceSize: c.sourceSize,
		MirrorSize: c.mirrorSize,
		Factors:    c.factors,
		Aspect:     c.cfg.AspectMode().String(),
	}
	if c.hasSource {
		node := c.source
		st.Source = &node
		st.Query = c.query.Text
	}
	sess := c.session
	c.mu.RUnlock()

	if sess != nil {
		st.State = sess.State().String()
		st.Capture = sess.Stats()
	}
	if p, ok := c.forwarder.LastPointer(); ok {
		st.Pointer = &p
	}
	return st
}

func (c *Controller) captureStats() (capture.StatsSnapshot, bool) {
	sess := c.active.Load()
	if sess == nil {
		return capture.StatsSnapshot{}, false
	}
	return sess.Stats(), true
}

func queryFor(node window.Node) window.Query {
	if node.Title == "" && node.Process != "" {
		return window.Query{Text: "process:" + node.Process, Class: node.Class}
	}
	return window.Query{Text: node.Title, Class: node.Class}
}

func notify(listeners []ScalingListener, size geometry.Size, aspect geometry.AspectMode) {
	for _, fn := range listeners {
		fn(size, aspect)
	}
}
