package output

import (
	"bytes"
	"encoding/json"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/downscaler/internal/geometry"
)

func frame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func startedOutput(t *testing.T, cfg Config) *MJPEGOutput {
	t.Helper()
	m := NewMJPEGOutput(cfg, geometry.AspectMaintain)
	if err := m.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { m.Stop() })
	return m
}

// attach registers a fake stream client.
func attach(m *MJPEGOutput) chan []byte {
	ch := make(chan []byte, 4)
	m.clientsMu.Lock()
	m.clients[ch] = struct{}{}
	m.clientsMu.Unlock()
	return ch
}

func TestWriteFrameWithoutClientsIsSkipped(t *testing.T) {
	m := startedOutput(t, Config{Width: 32, Height: 18})

	if err := m.WriteFrame(frame(64, 36)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Stats().Frames; got != 0 {
		t.Fatalf("expected no encoded frames, got %d", got)
	}
}

func TestWriteFrameBeforeStartIsSkipped(t *testing.T) {
	m := NewMJPEGOutput(Config{}, geometry.AspectMaintain)
	attach(m)
	if err := m.WriteFrame(frame(8, 8)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.frameCount.Load() != 0 {
		t.Fatal("expected stopped output to drop frames")
	}
}

func TestWriteFrameScalesToMirrorSize(t *testing.T) {
	m := startedOutput(t, Config{Width: 32, Height: 18})
	ch := attach(m)

	if err := m.WriteFrame(frame(64, 36)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data := <-ch
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 18 {
		t.Fatalf("expected 32x18 frame, got %dx%d", b.Dx(), b.Dy())
	}

	m.SetSize(geometry.Size{})
	m.WriteFrame(frame(20, 10))
	img, _ = jpeg.Decode(bytes.NewReader(<-ch))
	if b := img.Bounds(); b.Dx() != 20 || b.Dy() != 10 {
		t.Fatalf("expected frame at presented size, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestSetAspectStretchesFrames(t *testing.T) {
	m := startedOutput(t, Config{Width: 32, Height: 32})
	ch := attach(m)

	wide := frame(64, 16)
	for i := range wide.Pix {
		wide.Pix[i] = 0xff
	}
	luma := func() uint32 {
		t.Helper()
		img, err := jpeg.Decode(bytes.NewReader(<-ch))
		if err != nil {
			t.Fatalf("failed to decode frame: %v", err)
		}
		r, _, _, _ := img.At(16, 2).RGBA()
		return r >> 8
	}

	m.WriteFrame(wide)
	if got := luma(); got > 64 {
		t.Fatalf("expected letterbox bar at the top, got level %d", got)
	}

	m.SetAspect(geometry.AspectStretch)
	m.WriteFrame(wide)
	if got := luma(); got < 192 {
		t.Fatalf("expected stretched frame to fill the top, got level %d", got)
	}
}

func TestWriteFrameThrottle(t *testing.T) {
	m := startedOutput(t, Config{FPS: 1})
	attach(m)

	m.WriteFrame(frame(8, 8))
	m.WriteFrame(frame(8, 8))
	if got := m.Stats().Frames; got != 1 {
		t.Fatalf("expected 1 frame inside the interval, got %d", got)
	}
}

func TestSurfaceCloseKeepsStreaming(t *testing.T) {
	m := startedOutput(t, Config{})
	ch := attach(m)

	s, err := m.CreateSurface()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, _ = m.CreateSurface()
	if err := s.Present(frame(8, 8)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-ch:
	default:
		t.Fatal("expected frame from a new surface")
	}
}

func TestStopClosesClients(t *testing.T) {
	m := NewMJPEGOutput(Config{}, geometry.AspectMaintain)
	m.Start()
	ch := attach(m)

	m.Stop()
	if _, ok := <-ch; ok {
		t.Fatal("expected client channel to be closed")
	}
	if m.IsRunning() {
		t.Fatal("expected output to be stopped")
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("expected second stop to be a no-op, got %v", err)
	}
}

func TestStreamHandler(t *testing.T) {
	m := startedOutput(t, Config{Width: 16, Height: 16})
	srv := httptest.NewServer(m.StreamHandler())
	defer srv.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.WriteFrame(frame(32, 32))
			}
		}
	}()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("expected multipart stream, got %q", ct)
	}
	part, err := multipart.NewReader(resp.Body, "frame").NextPart()
	if err != nil {
		t.Fatalf("failed to read part: %v", err)
	}
	img, err := jpeg.Decode(part)
	if err != nil {
		t.Fatalf("failed to decode part: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 16 {
		t.Fatalf("expected 16x16 frame, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestSnapshotHandler(t *testing.T) {
	m := startedOutput(t, Config{})

	rec := httptest.NewRecorder()
	m.SnapshotHandler()(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before the first frame, got %d", rec.Code)
	}

	attach(m)
	m.WriteFrame(frame(8, 8))

	rec = httptest.NewRecorder()
	m.SnapshotHandler()(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, err := jpeg.Decode(rec.Body); err != nil {
		t.Fatalf("expected JPEG body: %v", err)
	}
}

func TestStatsHandler(t *testing.T) {
	m := startedOutput(t, Config{Width: 4, Height: 3, FPS: 30})
	attach(m)

	rec := httptest.NewRecorder()
	m.StatsHandler()(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var st Stats
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if !st.Running || st.Width != 4 || st.Height != 3 || st.TargetFPS != 30 || st.Clients != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestViewerHandler(t *testing.T) {
	m := NewMJPEGOutput(Config{}, geometry.AspectMaintain)

	rec := httptest.NewRecorder()
	m.ViewerHandler("/stream", "/api/input")(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `src="/stream"`) {
		t.Fatal("expected viewer to embed the stream")
	}
	if !strings.Contains(body, "/api/input") && !strings.Contains(body, `\/api\/input`) {
		t.Fatal("expected viewer to reference the input socket")
	}
}
