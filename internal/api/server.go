// Package api serves the HTTP control surface: status, window listing,
// source selection, scaling, pointer input and the MJPEG viewer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/downscaler/internal/config"
	"github.com/bryanchriswhite/downscaler/internal/input"
	"github.com/bryanchriswhite/downscaler/internal/logger"
	"github.com/bryanchriswhite/downscaler/internal/mirror"
	"github.com/bryanchriswhite/downscaler/internal/output"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

// Version is reported by /api/health.
const Version = "0.1.0"

// StatusInterval is how often /api/status/stream pushes a status.
const StatusInterval = 500 * time.Millisecond

var errBadRequest = errors.New("bad request")

// Mirror is the part of mirror.Controller the server drives.
type Mirror interface {
	Status() mirror.Status
	Windows() ([]window.Node, error)
	SelectByQuery(q window.Query) (window.Node, error)
	SelectSource(node window.Node) error
	Stop() error
	ApplyScaling(s config.ScalingConfig) error
	HandlePointer(ev input.PointerEvent) error
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	mirror    Mirror
	configMgr *config.Manager
	stream    *output.MJPEGOutput
	upgrader  websocket.Upgrader
	log       zerolog.Logger
	http      *http.Server
}

// NewServer creates a new API server. configMgr and stream may be nil; the
// config routes and viewer routes are then unavailable.
func NewServer(m Mirror, configMgr *config.Manager, stream *output.MJPEGOutput) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		mirror:    m,
		configMgr: configMgr,
		stream:    stream,
		upgrader: websocket.Upgrader{
			CheckOrigin: sameOrigin,
		},
		log: *logger.WithComponent("api"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Mirror state
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/status/stream", s.handleStatusStream)
	api.HandleFunc("/windows", s.handleWindows).Methods("GET")

	// Source selection
	api.HandleFunc("/source", s.handleSelectSource).Methods("POST")
	api.HandleFunc("/source", s.handleStopSource).Methods("DELETE")

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config/scaling", s.handleUpdateScaling).Methods("PUT")

	// Pointer input
	api.HandleFunc("/input", s.handleInputSocket).Methods("GET")
	api.HandleFunc("/input", s.handleInput).Methods("POST")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.stream != nil {
		s.router.HandleFunc("/stream", s.stream.StreamHandler()).Methods("GET")
		s.router.HandleFunc("/snapshot", s.stream.SnapshotHandler()).Methods("GET")
		s.router.HandleFunc("/stats", s.stream.StatsHandler()).Methods("GET")
		s.router.HandleFunc("/", s.stream.ViewerHandler("/stream", "/api/input")).Methods("GET")
	}
}

// Handler returns the routed handler behind the origin guard.
func (s *Server) Handler() http.Handler {
	return s.guardOrigin(s.router)
}

// Start serves on bind:port until Shutdown. An empty bind listens on the
// loopback interface only. It returns nil after a clean shutdown.
func (s *Server) Start(bind string, port int) error {
	if bind == "" {
		bind = config.DefaultBindAddress
	}
	addr := net.JoinHostPort(bind, strconv.Itoa(port))
	s.http = &http.Server{Addr: addr, Handler: s.Handler()}

	s.log.Info().Str("addr", "http://"+addr).Msg("Starting server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// guardOrigin rejects state-changing requests that a page from another
// origin sends through the user's browser. No CORS headers are set, so
// cross-origin pages cannot read responses either.
func (s *Server) guardOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
		default:
			if !sameOrigin(r) {
				s.log.Warn().
					Str("origin", r.Header.Get("Origin")).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("Rejected cross-origin request")
				http.Error(w, "cross-origin request rejected", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// sameOrigin accepts requests without an Origin header (the CLI, the MCP
// bridge, curl) and browser requests whose Origin host matches Host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// statusFor maps mirror errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, window.ErrWindowNotFound):
		return http.StatusNotFound
	case errors.Is(err, mirror.ErrNoSource):
		return http.StatusConflict
	case errors.Is(err, input.ErrSourceWindowLost), errors.Is(err, window.ErrWindowGone):
		return http.StatusGone
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, mirror.ErrControllerClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// HTTP Handlers

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.mirror.Status())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(StatusInterval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(s.mirror.Status()); err != nil {
			s.log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.mirror.Windows()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if nodes == nil {
		nodes = []window.Node{}
	}
	writeJSON(w, nodes)
}

// sourceRequest selects by query text, or by handle when one is given.
// Handle accepts decimal or 0x-prefixed hex.
type sourceRequest struct {
	Query  string `json:"query"`
	Class  string `json:"class,omitempty"`
	Handle string `json:"handle,omitempty"`
}

func (s *Server) handleSelectSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var (
		node window.Node
		err  error
	)
	switch {
	case req.Handle != "":
		node, err = s.selectByHandle(req.Handle)
	case strings.TrimSpace(req.Query) != "":
		q := window.Query{Text: req.Query, Class: req.Class}
		node, err = s.mirror.SelectByQuery(q)
		if err == nil && s.configMgr != nil {
			if perr := s.configMgr.SetSource(config.SourceConfig{Query: q.Text, Class: q.Class}); perr != nil {
				s.log.Warn().Err(perr).Msg("Failed to persist source")
			}
		}
	default:
		http.Error(w, "query or handle is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	s.log.Info().
		Str("window", node.Handle.String()).
		Str("title", node.Title).
		Msg("Source selected")
	writeJSON(w, node)
}

func (s *Server) selectByHandle(raw string) (window.Node, error) {
	n, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return window.Node{}, fmt.Errorf("%w: invalid handle %q", errBadRequest, raw)
	}
	h := window.Handle(n)

	nodes, err := s.mirror.Windows()
	if err != nil {
		return window.Node{}, err
	}
	for _, node := range nodes {
		if node.Handle == h {
			return node, s.mirror.SelectSource(node)
		}
	}
	return window.Node{}, fmt.Errorf("%w: handle %s", window.ErrWindowNotFound, h)
}

func (s *Server) handleStopSource(w http.ResponseWriter, r *http.Request) {
	if err := s.mirror.Stop(); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, map[string]string{"status": "success"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "configuration is not persisted", http.StatusNotFound)
		return
	}
	writeJSON(w, s.configMgr.Get())
}

func (s *Server) handleUpdateScaling(w http.ResponseWriter, r *http.Request) {
	var scaling config.ScalingConfig
	if err := json.NewDecoder(r.Body).Decode(&scaling); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.mirror.ApplyScaling(scaling); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if s.configMgr != nil {
		if err := s.configMgr.SetScaling(scaling); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
	}
	writeJSON(w, s.mirror.Status())
}

// pointerMessage is the wire form of a pointer event. Kind uses the names
// from window.EventKind.String; Buttons defaults to the button implied by
// Kind.
type pointerMessage struct {
	X       int             `json:"x"`
	Y       int             `json:"y"`
	Kind    string          `json:"kind"`
	Buttons *window.Buttons `json:"buttons,omitempty"`
}

func (m pointerMessage) event() (input.PointerEvent, error) {
	kind := window.EventMove
	if m.Kind != "" {
		var err error
		if kind, err = window.ParseEventKind(m.Kind); err != nil {
			return input.PointerEvent{}, fmt.Errorf("%w: %v", errBadRequest, err)
		}
	}
	buttons := window.DefaultButtons(kind)
	if m.Buttons != nil {
		buttons = *m.Buttons
	}
	return input.PointerEvent{X: m.X, Y: m.Y, Kind: kind, Buttons: buttons}, nil
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var msg pointerMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ev, err := msg.event()
	if err == nil {
		err = s.mirror.HandlePointer(ev)
	}
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, map[string]string{"status": "success"})
}

// handleInputSocket reads pointer messages until the client disconnects.
// Errors are reported back once per distinct message so a stream of moves
// with no source does not flood the client.
func (s *Server) handleInputSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("Input client connected")
	defer s.log.Debug().Str("remote", r.RemoteAddr).Msg("Input client disconnected")

	var lastErr string
	for {
		var msg pointerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}

		ev, err := msg.event()
		if err == nil {
			err = s.mirror.HandlePointer(ev)
		}
		if err == nil {
			lastErr = ""
			continue
		}
		if err.Error() == lastErr {
			continue
		}
		lastErr = err.Error()
		if err := conn.WriteJSON(map[string]string{"error": lastErr}); err != nil {
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}
