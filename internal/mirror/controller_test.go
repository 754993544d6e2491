package mirror

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/downscaler/internal/capture"
	"github.com/bryanchriswhite/downscaler/internal/config"
	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/input"
	"github.com/bryanchriswhite/downscaler/internal/window"
	"github.com/bryanchriswhite/downscaler/internal/window/windowtest"
)

// treeGrabber captures blank frames sized like the fake window.
type treeGrabber struct{ tree *windowtest.Tree }

func (g treeGrabber) Name() string { return "tree" }
func (g treeGrabber) Close() error { return nil }

func (g treeGrabber) Grab(h window.Handle) (capture.Frame, error) {
	r, err := g.tree.WindowRect(h)
	if err != nil {
		return capture.Frame{}, err
	}
	size := r.Size()
	return capture.Frame{
		Image:    image.NewRGBA(image.Rect(0, 0, size.Width, size.Height)),
		Size:     size,
		Bounds:   r,
		Captured: time.Now(),
	}, nil
}

type countingSurface struct {
	mu       sync.Mutex
	presents int
	closed   bool
	size     image.Rectangle
}

func (s *countingSurface) Present(img *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presents++
	s.size = img.Bounds()
	return nil
}

func (s *countingSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *countingSurface) snapshot() (int, bool, image.Rectangle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presents, s.closed, s.size
}

type countingCompositor struct {
	mu       sync.Mutex
	surfaces []*countingSurface
}

func (c *countingCompositor) CreateSurface() (capture.Surface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &countingSurface{}
	c.surfaces = append(c.surfaces, s)
	return s, nil
}

func (c *countingCompositor) all() []*countingSurface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*countingSurface(nil), c.surfaces...)
}

const (
	game    window.Handle = 0x10
	editor  window.Handle = 0x20
	respawn window.Handle = 0x30
)

func rectOf(x, y, w, h int) geometry.Rect {
	return geometry.RectAt(geometry.Point{X: x, Y: y}, geometry.Size{Width: w, Height: h})
}

func newTestController(t *testing.T) (*Controller, *windowtest.Tree, *countingCompositor) {
	t.Helper()
	tree := windowtest.NewTree()
	tree.AddTopLevel(window.Node{Handle: game, Title: "Game", Process: "game.exe"}, rectOf(100, 100, 192, 108))
	tree.AddTopLevel(window.Node{Handle: editor, Title: "Editor"}, rectOf(0, 0, 64, 64))
	tree.SetFocus(game)

	cfg := config.Default()
	cfg.Input.MoveThrottleMS = 0

	comp := &countingCompositor{}
	c := NewController(cfg, tree, tree, capture.NewPollingDevice(treeGrabber{tree}, 200), comp)
	t.Cleanup(func() { c.Close() })
	return c, tree, comp
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSelectByQuery(t *testing.T) {
	c, _, comp := newTestController(t)

	node, err := c.SelectByQuery(window.Query{Text: "Game"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node.Handle != game {
		t.Fatalf("expected %s, got %s", game, node.Handle)
	}

	st := c.Status()
	if !st.Active || st.Source == nil || st.Source.Handle != game {
		t.Fatalf("expected active mirror of %s, got %+v", game, st)
	}
	if st.MirrorSize != (geometry.Size{Width: 96, Height: 54}) {
		t.Fatalf("expected 96x54 mirror, got %s", st.MirrorSize)
	}
	if st.Factors != (geometry.ScaleFactors{X: 2, Y: 2}) {
		t.Fatalf("expected factors 2x2, got %+v", st.Factors)
	}
	if st.State != capture.StateActive.String() {
		t.Fatalf("expected active session, got %s", st.State)
	}

	waitFor(t, "a presented frame", func() bool {
		surfaces := comp.all()
		if len(surfaces) != 1 {
			return false
		}
		n, _, _ := surfaces[0].snapshot()
		return n > 0
	})
	if _, _, size := comp.all()[0].snapshot(); size != image.Rect(0, 0, 192, 108) {
		t.Fatalf("expected client-sized frames, got %v", size)
	}
}

func TestSelectByQueryNotFound(t *testing.T) {
	c, _, _ := newTestController(t)

	if _, err := c.SelectByQuery(window.Query{Text: "Missing"}); !errors.Is(err, window.ErrWindowNotFound) {
		t.Fatalf("expected ErrWindowNotFound, got %v", err)
	}
	if c.Status().Active {
		t.Fatal("expected controller to stay idle")
	}
}

func TestSelectSourceReplacesSession(t *testing.T) {
	c, _, comp := newTestController(t)

	if err := c.SelectSource(window.Node{Handle: game, Title: "Game"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.SelectSource(window.Node{Handle: editor, Title: "Editor"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	surfaces := comp.all()
	if len(surfaces) != 2 {
		t.Fatalf("expected a surface per session, got %d", len(surfaces))
	}
	if _, closed, _ := surfaces[0].snapshot(); !closed {
		t.Fatal("expected first session's surface to be closed")
	}
	if _, closed, _ := surfaces[1].snapshot(); closed {
		t.Fatal("expected current surface to stay open")
	}
	if c.Source() != editor {
		t.Fatalf("expected source %s, got %s", editor, c.Source())
	}
	if got := c.MirrorSize(); got != (geometry.Size{Width: 32, Height: 32}) {
		t.Fatalf("expected 32x32 mirror, got %s", got)
	}
}

func TestHandlePointerMapsToSource(t *testing.T) {
	c, tree, _ := newTestController(t)
	if _, err := c.SelectByQuery(window.Query{Text: "game.exe"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.HandlePointer(input.PointerEvent{X: 10, Y: 10, Kind: window.EventMove}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := tree.SentTo(game)
	if len(sent) != 1 || sent[0].Point != (geometry.Point{X: 20, Y: 20}) {
		t.Fatalf("expected one move at (20, 20), got %+v", sent)
	}

	st := c.Status()
	if st.Pointer == nil || st.Pointer.Absolute != (geometry.Point{X: 120, Y: 120}) {
		t.Fatalf("expected pointer at absolute (120, 120), got %+v", st.Pointer)
	}
}

func TestHandlePointerWithoutSource(t *testing.T) {
	c, _, _ := newTestController(t)
	if err := c.HandlePointer(input.PointerEvent{X: 1, Y: 1}); !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
}

func TestZeroMirrorSizeSuppressesForwarding(t *testing.T) {
	c, tree, _ := newTestController(t)
	if _, err := c.SelectByQuery(window.Query{Text: "Game"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.MirrorResized(geometry.Size{Width: 0, Height: 54}); !errors.Is(err, geometry.ErrDegenerateScale) {
		t.Fatalf("expected ErrDegenerateScale, got %v", err)
	}
	if err := c.HandlePointer(input.PointerEvent{X: 10, Y: 10, Kind: window.EventLeftDown}); err != nil {
		t.Fatalf("expected degenerate scale to be suppressed, got %v", err)
	}
	if n := len(tree.Sent()); n != 0 {
		t.Fatalf("expected no dispatch, got %d", n)
	}

	if err := c.MirrorResized(geometry.Size{Width: 48, Height: 27}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f := c.Factors(); f != (geometry.ScaleFactors{X: 4, Y: 4}) {
		t.Fatalf("expected factors 4x4, got %+v", f)
	}
}

func TestSourceResizeRederivesMirror(t *testing.T) {
	c, tree, _ := newTestController(t)
	var got []geometry.Size
	var mu sync.Mutex
	c.OnScaling(func(s geometry.Size, _ geometry.AspectMode) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	if _, err := c.SelectByQuery(window.Query{Text: "Game"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tree.Resize(game, rectOf(100, 100, 100, 50))
	if err := c.SourceResized(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if size := c.MirrorSize(); size != (geometry.Size{Width: 50, Height: 25}) {
		t.Fatalf("expected 50x25 mirror, got %s", size)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) < 2 || got[len(got)-1] != (geometry.Size{Width: 50, Height: 25}) {
		t.Fatalf("expected listener to see the new mirror size, got %v", got)
	}
}

func TestPinnedMirrorSurvivesSourceResize(t *testing.T) {
	c, tree, _ := newTestController(t)
	if _, err := c.SelectByQuery(window.Query{Text: "Game"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.MirrorResized(geometry.Size{Width: 64, Height: 36}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tree.Resize(game, rectOf(100, 100, 128, 72))
	c.SourceResized()

	if size := c.MirrorSize(); size != (geometry.Size{Width: 64, Height: 36}) {
		t.Fatalf("expected pinned 64x36 mirror, got %s", size)
	}
	if f := c.Factors(); f != (geometry.ScaleFactors{X: 2, Y: 2}) {
		t.Fatalf("expected factors 2x2, got %+v", f)
	}
}

func TestApplyScaling(t *testing.T) {
	c, _, _ := newTestController(t)
	if _, err := c.SelectByQuery(window.Query{Text: "Game"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.ApplyScaling(config.ScalingConfig{MirrorWidth: 64, Factor: 2}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for conflicting options, got %v", err)
	}
	if err := c.ApplyScaling(config.ScalingConfig{MirrorWidth: 64, Aspect: "stretch"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size := c.MirrorSize(); size != (geometry.Size{Width: 64, Height: 36}) {
		t.Fatalf("expected 64x36 mirror, got %s", size)
	}
	if st := c.Status(); st.Aspect != "stretch" {
		t.Fatalf("expected stretch aspect, got %s", st.Aspect)
	}
}

func TestApplyScalingNotifiesAspect(t *testing.T) {
	c, _, _ := newTestController(t)
	type change struct {
		size   geometry.Size
		aspect geometry.AspectMode
	}
	var got []change
	var mu sync.Mutex
	c.OnScaling(func(s geometry.Size, a geometry.AspectMode) {
		mu.Lock()
		got = append(got, change{s, a})
		mu.Unlock()
	})

	if _, err := c.SelectByQuery(window.Query{Text: "Game"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	size := c.MirrorSize()

	// Same size, new mode: the surfaces still have to hear about it.
	if err := c.ApplyScaling(config.ScalingConfig{Factor: 2, Aspect: "stretch"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected select and aspect notifications, got %v", got)
	}
	if last := got[1]; last.aspect != geometry.AspectStretch || last.size != size {
		t.Fatalf("expected stretch at %s, got %+v", size, last)
	}
}

func TestApplyScalingConcurrent(t *testing.T) {
	c, _, _ := newTestController(t)
	if _, err := c.SelectByQuery(window.Query{Text: "Game"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := c.ApplyScaling(config.ScalingConfig{MirrorWidth: 10 + i}); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			c.Status()
		}(i)
	}
	wg.Wait()

	if w := c.MirrorSize().Width; w < 10 || w >= 60 {
		t.Fatalf("expected a width from one of the updates, got %d", w)
	}
}

func TestLostSourceIsReselected(t *testing.T) {
	c, tree, _ := newTestController(t)
	if _, err := c.SelectByQuery(window.Query{Text: "Game"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tree.Destroy(game)
	tree.AddTopLevel(window.Node{Handle: respawn, Title: "Game"}, rectOf(0, 0, 192, 108))

	if err := c.HandlePointer(input.PointerEvent{X: 5, Y: 5, Kind: window.EventMove}); err != nil {
		t.Fatalf("expected re-selection to succeed, got %v", err)
	}
	if c.Source() != respawn {
		t.Fatalf("expected source %s after re-selection, got %s", respawn, c.Source())
	}
}

func TestLostSourceWithoutReplacementStops(t *testing.T) {
	c, tree, _ := newTestController(t)
	if _, err := c.SelectByQuery(window.Query{Text: "Game"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tree.Destroy(game)
	if err := c.HandlePointer(input.PointerEvent{X: 5, Y: 5, Kind: window.EventMove}); !errors.Is(err, input.ErrSourceWindowLost) {
		t.Fatalf("expected ErrSourceWindowLost, got %v", err)
	}
	if c.Status().Active {
		t.Fatal("expected mirroring to stop")
	}
}

func TestCloseIsFinal(t *testing.T) {
	c, _, comp := newTestController(t)
	if _, err := c.SelectByQuery(window.Query{Text: "Game"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("expected second close to succeed, got %v", err)
	}
	if _, closed, _ := comp.all()[0].snapshot(); !closed {
		t.Fatal("expected surface to be closed")
	}
	if err := c.SelectSource(window.Node{Handle: editor}); !errors.Is(err, ErrControllerClosed) {
		t.Fatalf("expected ErrControllerClosed, got %v", err)
	}
}

func TestDebugOverlayText(t *testing.T) {
	if got := fpsText(capture.StatsSnapshot{}, false); got != "-- fps" {
		t.Fatalf("expected placeholder, got %q", got)
	}
	got := fpsText(capture.StatsSnapshot{FPS: 59.94, FrameTime: 1500 * time.Microsecond, Frames: 45}, true)
	if got != "59.9 fps  1.50 ms" {
		t.Fatalf("unexpected fps text %q", got)
	}

	p := input.Coordinates{
		Local:    geometry.Point{X: 48, Y: 27},
		Source:   geometry.Point{X: 96, Y: 54},
		Absolute: geometry.Point{X: 196, Y: 154},
		PercentX: 0.5,
		PercentY: 0.5,
	}
	want := "absolute 196, 154\nsource   96, 54\nmirror   48, 27 (50%, 50%)"
	if got := pointerText(p, true); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestDebugOverlaySelection(t *testing.T) {
	stats := func() (capture.StatsSnapshot, bool) { return capture.StatsSnapshot{}, false }
	pointer := func() (input.Coordinates, bool) { return input.Coordinates{}, false }

	if m := newDebugOverlay(config.DebugConfig{Enabled: true, FontScale: 1}, stats, pointer); m != nil {
		t.Fatal("expected no overlay when no widget is selected")
	}
	m := newDebugOverlay(config.DebugConfig{Enabled: true, ShowFPS: true, ShowMouseCoordinates: true, FontScale: 1}, stats, pointer)
	if m == nil || m.Len() != 2 {
		t.Fatalf("expected fps and mouse widgets, got %v", m)
	}
}
