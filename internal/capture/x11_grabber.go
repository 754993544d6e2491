//go:build linux

package capture

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/logger"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

// X11Grabber captures window contents with GetImage, reading from the
// Composite named pixmap when the extension is present so obscured windows
// still capture correctly.
type X11Grabber struct {
	conn             *xgb.Conn
	root             xproto.Window
	depth            byte
	compositeEnabled bool

	mu         sync.Mutex
	redirected map[xproto.Window]bool
}

// NewX11Grabber uses conn, which may be shared with the window backend.
func NewX11Grabber(conn *xgb.Conn) *X11Grabber {
	log := logger.WithComponent("x11-grabber")

	screen := xproto.Setup(conn).DefaultScreen(conn)
	g := &X11Grabber{
		conn:       conn,
		root:       screen.Root,
		depth:      screen.RootDepth,
		redirected: make(map[xproto.Window]bool),
	}

	if err := composite.Init(conn); err != nil {
		log.Warn().
			Err(err).
			Msg("Composite extension not available - capture of obscured windows may fail")
	} else {
		g.compositeEnabled = true
		log.Info().Msg("Composite extension initialized")
	}
	return g
}

// Name returns the grabber name
func (g *X11Grabber) Name() string { return "x11" }

// Close undoes any Composite redirection. The connection belongs to the
// caller.
func (g *X11Grabber) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for win := range g.redirected {
		composite.UnredirectWindow(g.conn, win, composite.RedirectAutomatic)
	}
	g.redirected = make(map[xproto.Window]bool)
	return nil
}

// Grab captures h's drawable. Bounds is the window's area in root
// coordinates.
func (g *X11Grabber) Grab(h window.Handle) (Frame, error) {
	win := xproto.Window(h)

	geom, err := xproto.GetGeometry(g.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: geometry %s: %v", window.ErrWindowGone, h, err)
	}
	if geom.Width == 0 || geom.Height == 0 {
		return Frame{}, fmt.Errorf("window %s has empty geometry", h)
	}
	origin, err := xproto.TranslateCoordinates(g.conn, win, g.root, 0, 0).Reply()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: translate %s: %v", window.ErrWindowGone, h, err)
	}

	drawable, release := g.drawableFor(win)
	defer release()

	reply, err := xproto.GetImage(
		g.conn,
		xproto.ImageFormatZPixmap,
		drawable,
		0, 0,
		geom.Width, geom.Height,
		0xffffffff,
	).Reply()
	if err != nil {
		return Frame{}, fmt.Errorf("failed to get image: %w", err)
	}

	size := geometry.Size{Width: int(geom.Width), Height: int(geom.Height)}
	img, err := g.convertImageData(reply.Data, size)
	if err != nil {
		return Frame{}, err
	}

	return Frame{
		Image:    img,
		Size:     size,
		Bounds:   geometry.RectAt(geometry.Point{X: int(origin.DstX), Y: int(origin.DstY)}, size),
		Captured: time.Now(),
	}, nil
}

// drawableFor returns the Composite backing pixmap of win, or win itself
// when Composite is unavailable or fails.
func (g *X11Grabber) drawableFor(win xproto.Window) (xproto.Drawable, func()) {
	noop := func() {}
	if !g.compositeEnabled {
		return xproto.Drawable(win), noop
	}

	log := logger.WithComponent("x11-grabber")

	g.mu.Lock()
	if !g.redirected[win] {
		if err := composite.RedirectWindowChecked(g.conn, win, composite.RedirectAutomatic).Check(); err != nil {
			g.mu.Unlock()
			log.Debug().
				Err(err).
				Uint32("window_id", uint32(win)).
				Msg("Failed to redirect window via Composite, falling back to direct capture")
			return xproto.Drawable(win), noop
		}
		g.redirected[win] = true
	}
	g.mu.Unlock()

	pixmap, err := xproto.NewPixmapId(g.conn)
	if err != nil {
		return xproto.Drawable(win), noop
	}
	if err := composite.NameWindowPixmapChecked(g.conn, win, pixmap).Check(); err != nil {
		return xproto.Drawable(win), noop
	}
	return xproto.Drawable(pixmap), func() { xproto.FreePixmap(g.conn, pixmap) }
}

// convertImageData converts 24/32-bit BGRX ZPixmap data to RGBA.
func (g *X11Grabber) convertImageData(data []byte, size geometry.Size) (*image.RGBA, error) {
	if g.depth != 24 && g.depth != 32 {
		return nil, fmt.Errorf("unsupported root depth %d", g.depth)
	}
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	n := size.Width * size.Height * 4
	if len(data) < n {
		return nil, fmt.Errorf("short image data: got %d bytes, want %d", len(data), n)
	}
	for i := 0; i < n; i += 4 {
		img.Pix[i] = data[i+2]
		img.Pix[i+1] = data[i+1]
		img.Pix[i+2] = data[i]
		img.Pix[i+3] = 255
	}
	return img, nil
}
