package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/downscaler/internal/capture"
	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/logger"
)

const defaultQuality = 85

var _ Output = (*MJPEGOutput)(nil)

// MJPEGOutput streams the mirror as Motion JPEG over HTTP. Frames are
// scaled to the mirror size so viewer pointer coordinates are mirror-local.
type MJPEGOutput struct {
	config   Config
	aspect   geometry.AspectMode
	interval time.Duration
	log      zerolog.Logger

	mu        sync.RWMutex
	running   bool
	size      geometry.Size
	startTime time.Time

	// encodeMu serializes Present; canvas and lastEncode belong to it.
	encodeMu   sync.Mutex
	canvas     *image.RGBA
	lastEncode time.Time

	frameMu    sync.RWMutex
	lastFrame  []byte
	lastUpdate time.Time

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameCount atomic.Uint64
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config Config, aspect geometry.AspectMode) *MJPEGOutput {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = defaultQuality
	}
	var interval time.Duration
	if config.FPS > 0 {
		interval = time.Second / time.Duration(config.FPS)
	}
	return &MJPEGOutput{
		config:   config,
		aspect:   aspect,
		interval: interval,
		log:      *logger.WithComponent("mjpeg"),
		size:     geometry.Size{Width: config.Width, Height: config.Height},
		clients:  make(map[chan []byte]struct{}),
	}
}

// Start initializes the MJPEG output. Handlers are mounted separately.
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount.Store(0)

	m.log.Info().
		Int("width", m.size.Width).
		Int("height", m.size.Height).
		Int("fps", m.config.FPS).
		Msg("MJPEG output started")
	return nil
}

// Stop cleanly shuts down the output
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	m.log.Info().Uint64("frames", m.frameCount.Load()).Msg("MJPEG output stopped")
	return nil
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// SetSize changes the streamed frame size. An empty size streams frames at
// their presented size.
func (m *MJPEGOutput) SetSize(size geometry.Size) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.size = size
}

// SetAspect switches between letterboxing and stretching.
func (m *MJPEGOutput) SetAspect(mode geometry.AspectMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aspect = mode
}

// Size returns the streamed frame size.
func (m *MJPEGOutput) Size() geometry.Size {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Clients returns the number of connected stream clients.
func (m *MJPEGOutput) Clients() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// CreateSurface returns a surface that feeds the stream. Closing it leaves
// the stream running for the next session.
func (m *MJPEGOutput) CreateSurface() (capture.Surface, error) {
	return mjpegSurface{m}, nil
}

type mjpegSurface struct{ m *MJPEGOutput }

func (s mjpegSurface) Present(img *image.RGBA) error { return s.m.WriteFrame(img) }
func (s mjpegSurface) Close() error                  { return nil }

// WriteFrame encodes frame and sends it to every connected client. Frames
// arriving faster than the configured FPS, or while nobody is watching, are
// skipped.
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	m.mu.RLock()
	running, size, aspect := m.running, m.size, m.aspect
	m.mu.RUnlock()
	if !running {
		return nil
	}
	if m.Clients() == 0 {
		return nil
	}

	m.encodeMu.Lock()
	defer m.encodeMu.Unlock()

	now := time.Now()
	if m.interval > 0 && now.Sub(m.lastEncode) < m.interval {
		return nil
	}
	m.lastEncode = now

	var src image.Image = frame
	if !size.Empty() && (frame.Bounds().Dx() != size.Width || frame.Bounds().Dy() != size.Height) {
		if m.canvas == nil || m.canvas.Bounds().Dx() != size.Width || m.canvas.Bounds().Dy() != size.Height {
			m.canvas = image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
		}
		capture.Fit(m.canvas, frame, aspect)
		src = m.canvas
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, src, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.frameMu.Lock()
	m.lastFrame = jpegData
	m.lastUpdate = now
	m.frameMu.Unlock()

	m.frameCount.Add(1)

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
		}
	}
	m.clientsMu.RUnlock()
	return nil
}

// StreamHandler serves multipart/x-mixed-replace JPEG frames.
func (m *MJPEGOutput) StreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		m.log.Info().Int("clients", clientCount).Msg("Stream client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			m.log.Info().Int("clients", clientCount).Msg("Stream client disconnected")
		}()

		// Send the last frame straight away so a paused source still shows.
		m.frameMu.RLock()
		last := m.lastFrame
		m.frameMu.RUnlock()
		if last != nil && writePart(w, last) != nil {
			return
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if writePart(w, jpegData) != nil {
					return
				}
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// SnapshotHandler serves the most recent JPEG frame.
func (m *MJPEGOutput) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.frameMu.RLock()
		last := m.lastFrame
		m.frameMu.RUnlock()

		if last == nil {
			http.Error(w, "no frame available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(last)
	}
}

// Stats is the stream state reported by StatsHandler.
type Stats struct {
	Running    bool          `json:"running"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	TargetFPS  int           `json:"target_fps"`
	ActualFPS  float64       `json:"actual_fps"`
	Frames     uint64        `json:"frames"`
	Clients    int           `json:"clients"`
	LastUpdate *time.Time    `json:"last_update,omitempty"`
	Uptime     time.Duration `json:"uptime_ns"`
}

// Stats snapshots the stream counters.
func (m *MJPEGOutput) Stats() Stats {
	m.mu.RLock()
	running, size, startTime := m.running, m.size, m.startTime
	m.mu.RUnlock()

	m.frameMu.RLock()
	lastUpdate := m.lastUpdate
	m.frameMu.RUnlock()

	st := Stats{
		Running:   running,
		Width:     size.Width,
		Height:    size.Height,
		TargetFPS: m.config.FPS,
		Frames:    m.frameCount.Load(),
		Clients:   m.Clients(),
	}
	if running && !startTime.IsZero() {
		st.Uptime = time.Since(startTime)
		if secs := st.Uptime.Seconds(); secs > 0 {
			st.ActualFPS = float64(st.Frames) / secs
		}
	}
	if !lastUpdate.IsZero() {
		st.LastUpdate = &lastUpdate
	}
	return st
}

// StatsHandler returns stream statistics as JSON.
func (m *MJPEGOutput) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Stats())
	}
}
