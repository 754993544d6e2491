package capture

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/downscaler/internal/config"
	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/logger"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

// Session streams one source window into a swap chain.
//
// Frames arrive on the frame pool's goroutine. The closed flag is checked
// before any work, and the mutex is held only while resizing, blitting and
// presenting.
type Session struct {
	cfg    *config.Config
	dir    window.Directory
	source window.Handle
	log    zerolog.Logger
	stats  *Stats

	closed atomic.Bool

	mu      sync.Mutex
	state   State
	pool    FramePool
	swap    SwapChain
	surface Surface

	onResize atomic.Pointer[func(geometry.Size)]
	onFrame  atomic.Pointer[func(*image.RGBA)]
}

// NewSession creates an uninitialized session for source.
func NewSession(cfg *config.Config, dir window.Directory, source window.Handle) *Session {
	return &Session{
		cfg:    cfg,
		dir:    dir,
		source: source,
		log:    logger.WithComponent("capture-session").With().Str("source", source.String()).Logger(),
		stats:  NewStats(StatsInterval),
	}
}

// Source returns the window being captured.
func (s *Session) Source() window.Handle { return s.source }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns the latest frame statistics.
func (s *Session) Stats() StatsSnapshot { return s.stats.Snapshot() }

// OnResize registers fn to be called, outside the session lock, whenever a
// frame arrives with a new content size.
func (s *Session) OnResize(fn func(geometry.Size)) {
	s.onResize.Store(&fn)
}

// OnFrame registers fn to be called with the back buffer after each
// present, while the buffer is still owned by the session.
func (s *Session) OnFrame(fn func(*image.RGBA)) {
	s.onFrame.Store(&fn)
}

// Start creates the frame pool and swap chain sized to target and begins
// streaming.
func (s *Session) Start(dev Device, target Target) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrSessionClosed
	case StateActive:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	if target.Size.Empty() {
		s.mu.Unlock()
		return fmt.Errorf("%w: target %s has empty size %s", ErrCaptureInit, target.Handle, target.Size)
	}

	pool, err := dev.CreateFramePool(target, target.Size)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: frame pool: %v", ErrCaptureInit, err)
	}
	swap, err := dev.CreateSwapChain(target.Size)
	if err != nil {
		pool.Close()
		s.mu.Unlock()
		return fmt.Errorf("%w: swap chain: %v", ErrCaptureInit, err)
	}
	if s.surface != nil {
		if err := swap.Bind(s.surface); err != nil {
			swap.Close()
			pool.Close()
			s.mu.Unlock()
			return fmt.Errorf("%w: bind surface: %v", ErrCaptureInit, err)
		}
	}

	s.pool = pool
	s.swap = swap
	s.state = StateActive
	s.mu.Unlock()

	s.log.Info().
		Int("width", target.Size.Width).
		Int("height", target.Size.Height).
		Int("fps", s.cfg.Capture.FPS).
		Msg("Starting capture")

	// The pool may deliver its first frame before Start returns, so it is
	// started without holding the lock.
	if err := pool.Start(s.onFrameArrived); err != nil {
		s.Close()
		return fmt.Errorf("%w: start: %v", ErrCaptureInit, err)
	}
	return nil
}

// CreateSurface binds a surface from comp to the swap chain. It may be
// called before or after Start, but only once.
func (s *Session) CreateSurface(comp Compositor) (Surface, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil, ErrSessionClosed
	}
	if s.surface != nil {
		return nil, ErrSurfaceExists
	}

	surface, err := comp.CreateSurface()
	if err != nil {
		return nil, fmt.Errorf("%w: create surface: %v", ErrCaptureInit, err)
	}
	if s.swap != nil {
		if err := s.swap.Bind(surface); err != nil {
			surface.Close()
			return nil, fmt.Errorf("%w: bind surface: %v", ErrCaptureInit, err)
		}
	}
	s.surface = surface
	return surface, nil
}

// Close stops frame delivery and releases the pool, swap chain and surface.
// It is idempotent and safe to call while a frame is being processed.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.mu.Lock()
	pool, swap, surface := s.pool, s.swap, s.surface
	s.pool, s.swap, s.surface = nil, nil, nil
	s.state = StateClosed
	s.mu.Unlock()

	var errs []error
	if pool != nil {
		if err := pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("frame pool: %w", err))
		}
	}
	if swap != nil {
		if err := swap.Close(); err != nil {
			errs = append(errs, fmt.Errorf("swap chain: %w", err))
		}
	}
	if surface != nil {
		if err := surface.Close(); err != nil {
			errs = append(errs, fmt.Errorf("surface: %w", err))
		}
	}

	s.log.Info().Msg("Capture session closed")
	return errors.Join(errs...)
}

// onFrameArrived runs on the frame pool's goroutine.
func (s *Session) onFrameArrived() {
	if s.closed.Load() {
		return
	}

	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()
	if pool == nil {
		return
	}

	frame, ok := pool.TryGetNextFrame()
	if !ok {
		return
	}

	box, ok := s.clientBox(frame)
	if !ok {
		return
	}

	started := time.Now()
	resized, presented := s.present(pool, frame, box)
	if !presented {
		return
	}
	s.stats.Record(time.Now(), time.Since(started))

	if resized {
		if fn := s.onResize.Load(); fn != nil {
			(*fn)(frame.Size)
		}
	}
}

// present resizes the pool and swap chain when the frame no longer matches
// them, then blits and presents.
func (s *Session) present(pool FramePool, frame Frame, box geometry.Rect) (resized, presented bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() || s.state != StateActive || s.pool != pool {
		return false, false
	}

	poolSize, swapSize := s.pool.Size(), s.swap.Size()
	if frame.Size != poolSize || frame.Size != swapSize {
		s.log.Debug().
			Str("from", poolSize.String()).
			Str("to", frame.Size.String()).
			Msg("Source resized, recreating buffers")
		if frame.Size != poolSize {
			if err := s.pool.Recreate(frame.Size); err != nil {
				s.log.Warn().Err(err).Msg("Failed to recreate frame pool")
				return false, false
			}
		}
		if frame.Size != swapSize {
			if err := s.swap.ResizeBuffers(frame.Size); err != nil {
				s.log.Warn().Err(err).Msg("Failed to resize swap chain")
				return false, false
			}
		}
		s.stats.recordResize()
		resized = true
	}

	if err := s.swap.Blit(frame, box); err != nil {
		s.log.Warn().Err(err).Msg("Blit failed")
		return resized, false
	}
	if fn := s.onFrame.Load(); fn != nil {
		if back, ok := s.swap.(interface{ BackBuffer() *image.RGBA }); ok {
			(*fn)(back.BackBuffer())
		}
	}
	if err := s.swap.Present(); err != nil {
		s.log.Warn().Err(err).Msg("Present failed")
		return resized, false
	}
	return resized, true
}

// clientBox returns the frame-local crop that removes the window frame.
// The client origin is combined with the DPI-corrected window rectangle,
// then moved into the frame's own bounds. Frames captured at a different
// density than their logical bounds have the box scaled to match.
func (s *Session) clientBox(frame Frame) (geometry.Rect, bool) {
	full := geometry.RectAt(geometry.Point{}, frame.Size)
	if frame.Bounds.Empty() {
		return full, true
	}

	client, err := s.dir.ClientRectInScreen(s.source)
	if err != nil {
		if errors.Is(err, window.ErrWindowGone) {
			s.log.Debug().Err(err).Msg("Source gone, dropping frame")
			return geometry.Rect{}, false
		}
		return full, true
	}

	win, err := s.dir.WindowRect(s.source)
	if err != nil {
		if errors.Is(err, window.ErrWindowGone) {
			s.log.Debug().Err(err).Msg("Source gone, dropping frame")
			return geometry.Rect{}, false
		}
		win = frame.Bounds
	}

	box := geometry.ClientBox(client, win).Translate(geometry.Point{
		X: win.Left - frame.Bounds.Left,
		Y: win.Top - frame.Bounds.Top,
	})
	if bs := frame.Bounds.Size(); bs != frame.Size {
		sx := float64(frame.Size.Width) / float64(bs.Width)
		sy := float64(frame.Size.Height) / float64(bs.Height)
		box = geometry.Rect{
			Left:   int(float64(box.Left) * sx),
			Top:    int(float64(box.Top) * sy),
			Right:  int(float64(box.Right) * sx),
			Bottom: int(float64(box.Bottom) * sy),
		}
	}
	box = box.Intersect(full)
	if box.Empty() {
		return geometry.Rect{}, false
	}
	return box, true
}
