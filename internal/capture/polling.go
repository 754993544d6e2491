package capture

import (
	"fmt"
	"image"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/logger"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

// Grabber reads the current pixels of a window. The returned frame's Bounds
// is the screen rectangle the image covers.
type Grabber interface {
	Name() string
	Grab(h window.Handle) (Frame, error)
	Close() error
}

// PollingDevice implements Device by grabbing the target at a fixed rate.
type PollingDevice struct {
	grabber  Grabber
	interval time.Duration
}

// NewPollingDevice polls grabber fps times per second.
func NewPollingDevice(grabber Grabber, fps int) *PollingDevice {
	if fps <= 0 {
		fps = 60
	}
	return &PollingDevice{
		grabber:  grabber,
		interval: time.Second / time.Duration(fps),
	}
}

// Name returns the grabber name
func (d *PollingDevice) Name() string { return d.grabber.Name() }

// Close releases the grabber.
func (d *PollingDevice) Close() error { return d.grabber.Close() }

// CreateTarget grabs h once to learn its current size.
func (d *PollingDevice) CreateTarget(h window.Handle) (Target, error) {
	frame, err := d.grabber.Grab(h)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrCaptureInit, err)
	}
	return Target{Handle: h, Size: frame.Size}, nil
}

func (d *PollingDevice) CreateFramePool(target Target, size geometry.Size) (FramePool, error) {
	return &pollingPool{
		grabber:  d.grabber,
		target:   target.Handle,
		interval: d.interval,
		size:     size,
		stop:     make(chan struct{}),
	}, nil
}

func (d *PollingDevice) CreateSwapChain(size geometry.Size) (SwapChain, error) {
	return NewMemorySwapChain(size), nil
}

// pollingPool keeps a single frame slot; a new grab overwrites an unread
// one.
type pollingPool struct {
	grabber  Grabber
	target   window.Handle
	interval time.Duration

	mu      sync.Mutex
	size    geometry.Size
	latest  *Frame
	started bool
	closed  bool

	stop chan struct{}
}

func (p *pollingPool) Size() geometry.Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

func (p *pollingPool) Recreate(size geometry.Size) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrSessionClosed
	}
	p.size = size
	return nil
}

func (p *pollingPool) TryGetNextFrame() (Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return Frame{}, false
	}
	f := *p.latest
	p.latest = nil
	return f, true
}

func (p *pollingPool) Start(onArrived func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrSessionClosed
	}
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	go p.run(onArrived)
	return nil
}

func (p *pollingPool) run(onArrived func()) {
	log := logger.WithComponent("frame-pool").With().Str("target", p.target.String()).Logger()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var lastErr string
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}

		frame, err := p.grabber.Grab(p.target)
		if err != nil {
			if msg := err.Error(); msg != lastErr {
				log.Debug().Err(err).Msg("Grab failed")
				lastErr = msg
			}
			continue
		}
		lastErr = ""

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		p.latest = &frame
		p.mu.Unlock()

		onArrived()
	}
}

// Close stops the polling goroutine without waiting for it, so it may be
// called from within onArrived.
func (p *pollingPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.latest = nil
	close(p.stop)
	return nil
}

// MemorySwapChain is a software swap chain. Its back buffer holds the
// cropped client area of the last blitted frame.
type MemorySwapChain struct {
	mu      sync.Mutex
	size    geometry.Size
	back    *image.RGBA
	surface Surface
	closed  bool
}

// NewMemorySwapChain creates a swap chain for frames of the given size.
func NewMemorySwapChain(size geometry.Size) *MemorySwapChain {
	return &MemorySwapChain{size: size}
}

func (c *MemorySwapChain) Size() geometry.Size {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *MemorySwapChain) ResizeBuffers(size geometry.Size) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	c.size = size
	c.back = nil
	return nil
}

func (c *MemorySwapChain) Blit(frame Frame, box geometry.Rect) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	if frame.Image == nil {
		return fmt.Errorf("frame has no image")
	}

	w, h := box.Width(), box.Height()
	if c.back == nil || c.back.Bounds().Dx() != w || c.back.Bounds().Dy() != h {
		c.back = image.NewRGBA(image.Rect(0, 0, w, h))
	}

	origin := frame.Image.Bounds().Min.Add(image.Pt(box.Left, box.Top))
	draw.Draw(c.back, c.back.Bounds(), frame.Image, origin, draw.Src)
	return nil
}

// BackBuffer exposes the buffer between Blit and Present.
func (c *MemorySwapChain) BackBuffer() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.back
}

func (c *MemorySwapChain) Present() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	if c.surface == nil || c.back == nil {
		return nil
	}
	return c.surface.Present(c.back)
}

func (c *MemorySwapChain) Bind(s Surface) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	c.surface = s
	return nil
}

// Close drops the surface binding; the surface itself is owned by the
// session.
func (c *MemorySwapChain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.surface = nil
	c.back = nil
	return nil
}
