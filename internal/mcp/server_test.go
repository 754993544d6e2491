package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bryanchriswhite/downscaler/internal/config"
	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/input"
	"github.com/bryanchriswhite/downscaler/internal/mirror"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

type stubMirror struct {
	windows  []window.Node
	selected window.Node
	query    window.Query
	scaling  config.ScalingConfig
	stopped  bool
	events   []input.PointerEvent
	failAt   int
}

func (m *stubMirror) Windows() ([]window.Node, error)  { return m.windows, nil }
func (m *stubMirror) SelectSource(n window.Node) error { m.selected = n; return nil }
func (m *stubMirror) Stop() error                      { m.stopped = true; return nil }

func (m *stubMirror) Status() mirror.Status {
	return mirror.Status{
		Active:     m.selected.Handle != 0,
		Source:     &m.selected,
		State:      "running",
		MirrorSize: geometry.Size{Width: 960, Height: 540},
		Factors:    geometry.ScaleFactors{X: 2, Y: 2},
		Pointer: &input.Coordinates{
			Local:  geometry.Point{X: 1, Y: 2},
			Source: geometry.Point{X: 2, Y: 4},
			Inside: true,
			At:     time.Unix(0, 0),
		},
	}
}

func (m *stubMirror) SelectByQuery(q window.Query) (window.Node, error) {
	for _, n := range m.windows {
		if n.Title == q.Text {
			m.query = q
			m.selected = n
			return n, nil
		}
	}
	return window.Node{}, window.ErrWindowNotFound
}

func (m *stubMirror) ApplyScaling(s config.ScalingConfig) error {
	candidate := config.Default()
	candidate.Scaling = s
	if err := candidate.Validate(); err != nil {
		return err
	}
	m.scaling = s
	return nil
}

func (m *stubMirror) HandlePointer(ev input.PointerEvent) error {
	if m.failAt > 0 && len(m.events)+1 == m.failAt {
		return mirror.ErrNoSource
	}
	m.events = append(m.events, ev)
	return nil
}

func newStub() *stubMirror {
	return &stubMirror{windows: []window.Node{
		{Handle: 0x10, Title: "Game", Class: "UnityWndClass", Process: "game.exe"},
		{Handle: 0x20, Title: "Notes", Class: "Gedit", Process: "gedit"},
	}}
}

func TestNewServerRegistersTools(t *testing.T) {
	if s := NewServer(newStub()); s.mcpServer == nil {
		t.Fatal("expected MCP server to be created")
	}
}

func TestListWindowsFilter(t *testing.T) {
	s := NewServer(newStub())
	ctx := context.Background()

	_, out, err := s.handleListWindows(ctx, nil, ListWindowsInput{})
	if err != nil || len(out.Windows) != 2 {
		t.Fatalf("expected 2 windows, got %d (%v)", len(out.Windows), err)
	}

	_, out, _ = s.handleListWindows(ctx, nil, ListWindowsInput{Filter: "GAME.EXE"})
	if len(out.Windows) != 1 || out.Windows[0].Handle != 0x10 {
		t.Fatalf("expected process filter to match Game, got %+v", out.Windows)
	}

	_, out, _ = s.handleListWindows(ctx, nil, ListWindowsInput{Filter: "gedit"})
	if len(out.Windows) != 1 || out.Windows[0].Title != "Notes" {
		t.Fatalf("expected class filter to match Notes, got %+v", out.Windows)
	}
}

func TestSelectSource(t *testing.T) {
	stub := newStub()
	s := NewServer(stub)
	ctx := context.Background()

	_, out, err := s.handleSelectSource(ctx, nil, SelectSourceInput{Query: "Game", Class: "UnityWndClass"})
	if err != nil || out.Window.Handle != 0x10 {
		t.Fatalf("expected Game, got %+v (%v)", out.Window, err)
	}
	if stub.query.Class != "UnityWndClass" {
		t.Fatalf("expected class to be passed through, got %+v", stub.query)
	}

	_, out, err = s.handleSelectSource(ctx, nil, SelectSourceInput{Query: "Game", Handle: "32"})
	if err != nil || out.Window.Title != "Notes" || stub.selected.Handle != 0x20 {
		t.Fatalf("expected handle to win over query, got %+v (%v)", out.Window, err)
	}

	if _, _, err := s.handleSelectSource(ctx, nil, SelectSourceInput{Handle: "0x99"}); !errors.Is(err, window.ErrWindowNotFound) {
		t.Fatalf("expected ErrWindowNotFound, got %v", err)
	}
	if _, _, err := s.handleSelectSource(ctx, nil, SelectSourceInput{Handle: "nope"}); err == nil {
		t.Fatal("expected error for malformed handle")
	}
	if _, _, err := s.handleSelectSource(ctx, nil, SelectSourceInput{}); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestMirrorStatus(t *testing.T) {
	stub := newStub()
	stub.selected = stub.windows[0]
	s := NewServer(stub)

	_, out, err := s.handleMirrorStatus(context.Background(), nil, MirrorStatusInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Active || out.MirrorSize.Width != 960 || out.Factors.X != 2 {
		t.Fatalf("unexpected status: %+v", out)
	}
	if out.Pointer == nil || out.Pointer.Mirror != (geometry.Point{X: 1, Y: 2}) || out.Pointer.Source != (geometry.Point{X: 2, Y: 4}) {
		t.Fatalf("unexpected pointer: %+v", out.Pointer)
	}
}

func TestSendPointer(t *testing.T) {
	stub := newStub()
	s := NewServer(stub)
	ctx := context.Background()

	_, out, err := s.handleSendPointer(ctx, nil, SendPointerInput{X: 5, Y: 6})
	if err != nil || len(out.Sent) != 1 || out.Sent[0] != "move" {
		t.Fatalf("expected a move, got %+v (%v)", out, err)
	}

	_, out, err = s.handleSendPointer(ctx, nil, SendPointerInput{X: 5, Y: 6, Kind: "right_down"})
	if err != nil || stub.events[1].Buttons != window.ButtonRight {
		t.Fatalf("expected right button held, got %+v (%v)", stub.events, err)
	}

	held := int(window.ButtonLeft | window.ButtonShift)
	s.handleSendPointer(ctx, nil, SendPointerInput{X: 1, Y: 1, Buttons: &held})
	if got := stub.events[2].Buttons; got != window.ButtonLeft|window.ButtonShift {
		t.Fatalf("expected explicit buttons, got %d", got)
	}

	_, out, err = s.handleSendPointer(ctx, nil, SendPointerInput{X: 7, Y: 8, Click: true, Kind: "right_down"})
	if err != nil || len(out.Sent) != 2 || out.Sent[0] != "left_down" || out.Sent[1] != "left_up" {
		t.Fatalf("expected click to send down and up, got %+v (%v)", out, err)
	}

	if _, _, err := s.handleSendPointer(ctx, nil, SendPointerInput{Kind: "wiggle"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}

	stub.events = nil
	stub.failAt = 2
	_, out, err = s.handleSendPointer(ctx, nil, SendPointerInput{Click: true})
	if !errors.Is(err, mirror.ErrNoSource) || len(out.Sent) != 1 {
		t.Fatalf("expected partial click with ErrNoSource, got %+v (%v)", out, err)
	}
}

func TestSetScalingAndStop(t *testing.T) {
	stub := newStub()
	s := NewServer(stub)
	ctx := context.Background()

	_, out, err := s.handleSetScaling(ctx, nil, SetScalingInput{MirrorWidth: 960})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.scaling.MirrorWidth != 960 || out.MirrorSize.Width != 960 {
		t.Fatalf("unexpected scaling result: %+v / %+v", stub.scaling, out)
	}

	if _, _, err := s.handleSetScaling(ctx, nil, SetScalingInput{Factor: 2, MirrorHeight: 10}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}

	_, stopped, err := s.handleStopMirror(ctx, nil, StopMirrorInput{})
	if err != nil || !stopped.Stopped || !stub.stopped {
		t.Fatalf("expected stop, got %+v (%v)", stopped, err)
	}
}
