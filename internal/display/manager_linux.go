//go:build linux

package display

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xwindow"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/downscaler/internal/capture"
	"github.com/bryanchriswhite/downscaler/internal/config"
	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/input"
	"github.com/bryanchriswhite/downscaler/internal/logger"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

// Handlers receive mirror window events on the X event goroutine.
type Handlers struct {
	Resized func(geometry.Size)
	Pointer func(input.PointerEvent)
	Closed  func()
}

// Manager handles the mirror window and rendering
type Manager struct {
	cfg      config.DisplayConfig
	aspect   geometry.AspectMode
	handlers Handlers
	log      zerolog.Logger

	xu     *xgbutil.XUtil
	win    *xwindow.Window
	gc     xproto.Gcontext
	format PixmapFormat
	maxReq int

	mu      sync.Mutex
	running bool
	size    geometry.Size
	canvas  *image.RGBA
	clicks  clickTracker
	done    chan struct{}
}

// NewManager connects to the X server. The window is created by Start.
func NewManager(cfg config.DisplayConfig, aspect geometry.AspectMode, h Handlers) (*Manager, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	screen := xu.Screen()
	var format PixmapFormat
	for _, f := range xproto.Setup(xu.Conn()).PixmapFormats {
		if f.Depth == screen.RootDepth {
			format = PixmapFormat{Depth: f.Depth, BitsPerPixel: f.BitsPerPixel, ScanlinePad: f.ScanlinePad}
			break
		}
	}
	if format.BitsPerPixel == 0 {
		xu.Conn().Close()
		return nil, fmt.Errorf("no pixmap format for depth %d", screen.RootDepth)
	}

	return &Manager{
		cfg:      cfg,
		aspect:   aspect,
		handlers: h,
		log:      *logger.WithComponent("display"),
		xu:       xu,
		format:   format,
		// MaximumRequestLength counts 4-byte units.
		maxReq: int(xproto.Setup(xu.Conn()).MaximumRequestLength) * 4,
		done:   make(chan struct{}),
	}, nil
}

// Start creates and maps the mirror window at size and begins processing
// its events.
func (m *Manager) Start(size geometry.Size) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("display already running")
	}
	if size.Empty() {
		return fmt.Errorf("%w: display size %s", geometry.ErrDegenerateScale, size)
	}

	win, err := xwindow.Generate(m.xu)
	if err != nil {
		return fmt.Errorf("failed to create window ID: %w", err)
	}
	err = win.CreateChecked(m.xu.RootWin(), m.cfg.X, m.cfg.Y, size.Width, size.Height,
		xproto.CwBackPixel|xproto.CwEventMask,
		0x000000,
		xproto.EventMaskExposure|xproto.EventMaskStructureNotify|
			xproto.EventMaskButtonPress|xproto.EventMaskButtonRelease|
			xproto.EventMaskPointerMotion)
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}
	m.win = win

	if err := ewmh.WmNameSet(m.xu, win.Id, m.cfg.Title); err != nil {
		m.log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := icccm.WmClassSet(m.xu, win.Id, &icccm.WmClass{Instance: "downscaler", Class: "Downscaler"}); err != nil {
		m.log.Warn().Err(err).Msg("Failed to set window class")
	}
	if err := icccm.WmProtocolsSet(m.xu, win.Id, []string{"WM_DELETE_WINDOW"}); err != nil {
		m.log.Warn().Err(err).Msg("Failed to set WM_PROTOCOLS")
	}

	gc, err := xproto.NewGcontextId(m.xu.Conn())
	if err != nil {
		return fmt.Errorf("failed to create graphics context: %w", err)
	}
	if err := xproto.CreateGCChecked(m.xu.Conn(), gc, xproto.Drawable(win.Id), 0, nil).Check(); err != nil {
		return fmt.Errorf("failed to create GC: %w", err)
	}
	m.gc = gc

	m.connectEvents()
	win.Map()

	m.size = size
	m.running = true
	go m.eventLoop()

	m.log.Info().
		Int("width", size.Width).
		Int("height", size.Height).
		Uint32("window_id", uint32(win.Id)).
		Msg("Mirror window created")
	return nil
}

// WindowID returns the mirror window so it can be excluded from selection.
func (m *Manager) WindowID() window.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.win == nil {
		return 0
	}
	return window.Handle(m.win.Id)
}

// Resize asks the window manager for a new mirror size. The resulting
// ConfigureNotify reports the size actually granted.
func (m *Manager) Resize(size geometry.Size) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || size.Empty() || size == m.size {
		return
	}
	m.win.Resize(size.Width, size.Height)
}

// SetAspect changes how frames are fitted into the window from the next
// present on.
func (m *Manager) SetAspect(mode geometry.AspectMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aspect = mode
}

// Done is closed when the event loop exits.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Stop destroys the mirror window
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	if m.gc != 0 {
		xproto.FreeGC(m.xu.Conn(), m.gc)
	}
	m.win.Destroy()
	m.mu.Unlock()

	xevent.Quit(m.xu)
	m.xu.Conn().Sync()
	m.log.Info().Msg("Mirror window closed")
}

func (m *Manager) eventLoop() {
	defer close(m.done)
	xevent.Main(m.xu)
}

func (m *Manager) connectEvents() {
	id := m.win.Id

	xevent.ConfigureNotifyFun(func(_ *xgbutil.XUtil, ev xevent.ConfigureNotifyEvent) {
		size := geometry.Size{Width: int(ev.Width), Height: int(ev.Height)}
		m.mu.Lock()
		changed := size != m.size
		m.size = size
		m.mu.Unlock()
		if changed && m.handlers.Resized != nil {
			m.handlers.Resized(size)
		}
	}).Connect(m.xu, id)

	xevent.MotionNotifyFun(func(_ *xgbutil.XUtil, ev xevent.MotionNotifyEvent) {
		m.pointer(input.PointerEvent{
			X:       int(ev.EventX),
			Y:       int(ev.EventY),
			Kind:    window.EventMove,
			Buttons: buttonsFromState(ev.State),
		})
	}).Connect(m.xu, id)

	xevent.ButtonPressFun(func(_ *xgbutil.XUtil, ev xevent.ButtonPressEvent) {
		m.mu.Lock()
		kind, ok := m.clicks.press(int(ev.Detail), time.Now())
		m.mu.Unlock()
		if !ok {
			return
		}
		m.pointer(input.PointerEvent{
			X:       int(ev.EventX),
			Y:       int(ev.EventY),
			Kind:    kind,
			Buttons: buttonsFromState(ev.State) | window.DefaultButtons(kind),
		})
	}).Connect(m.xu, id)

	xevent.ButtonReleaseFun(func(_ *xgbutil.XUtil, ev xevent.ButtonReleaseEvent) {
		kind, ok := release(int(ev.Detail))
		if !ok {
			return
		}
		m.pointer(input.PointerEvent{
			X:       int(ev.EventX),
			Y:       int(ev.EventY),
			Kind:    kind,
			Buttons: buttonsFromState(ev.State) &^ buttonMask(int(ev.Detail)),
		})
	}).Connect(m.xu, id)

	xevent.ClientMessageFun(func(xu *xgbutil.XUtil, ev xevent.ClientMessageEvent) {
		name, err := xprop(xu, ev)
		if err != nil || name != "WM_DELETE_WINDOW" {
			return
		}
		m.log.Info().Msg("Mirror window closed by the window manager")
		if m.handlers.Closed != nil {
			m.handlers.Closed()
		}
	}).Connect(m.xu, id)
}

func (m *Manager) pointer(ev input.PointerEvent) {
	if m.handlers.Pointer != nil {
		m.handlers.Pointer(ev)
	}
}

// CreateSurface returns a surface presenting into the mirror window.
func (m *Manager) CreateSurface() (capture.Surface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil, fmt.Errorf("display not running")
	}
	return &windowSurface{m: m}, nil
}

type windowSurface struct {
	m *Manager
}

func (s *windowSurface) Present(img *image.RGBA) error {
	return s.m.render(img)
}

// Close blanks the window; the window itself outlives the surface.
func (s *windowSurface) Close() error {
	return s.m.render(nil)
}

// render fits img into the window and uploads it. A nil img clears the
// window to black.
func (m *Manager) render(img *image.RGBA) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}

	size := m.size
	if m.canvas == nil || m.canvas.Bounds().Dx() != size.Width || m.canvas.Bounds().Dy() != size.Height {
		m.canvas = image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	}
	if img == nil {
		for i := range m.canvas.Pix {
			m.canvas.Pix[i] = 0
		}
	} else {
		capture.Fit(m.canvas, img, m.aspect)
	}
	return m.putImage(m.canvas)
}

// putImage uploads img in horizontal strips that fit the server's maximum
// request length.
func (m *Manager) putImage(img *image.RGBA) error {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	stride := m.format.Stride(width)
	// PutImage has a 24-byte header.
	rows := (m.maxReq - 24) / stride
	if rows < 1 {
		return fmt.Errorf("scanline of %d bytes exceeds the maximum request length", stride)
	}

	for y := 0; y < height; y += rows {
		end := min(y+rows, height)
		data, err := ZPixmap(img, m.format, y, end)
		if err != nil {
			return err
		}
		xproto.PutImage(m.xu.Conn(), xproto.ImageFormatZPixmap, xproto.Drawable(m.win.Id), m.gc,
			uint16(width), uint16(end-y), 0, int16(y), 0, m.format.Depth, data)
	}
	m.xu.Conn().Sync()
	return nil
}

// xprop resolves the protocol atom carried by a WM_PROTOCOLS message.
func xprop(xu *xgbutil.XUtil, ev xevent.ClientMessageEvent) (string, error) {
	if ev.Format != 32 {
		return "", fmt.Errorf("unexpected client message format %d", ev.Format)
	}
	reply, err := xproto.GetAtomName(xu.Conn(), xproto.Atom(ev.Data.Data32[0])).Reply()
	if err != nil {
		return "", err
	}
	return reply.Name, nil
}
