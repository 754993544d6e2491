package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bryanchriswhite/downscaler/internal/geometry"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestValidateScalingExclusive(t *testing.T) {
	tests := []struct {
		name    string
		scaling ScalingConfig
		wantErr bool
	}{
		{"factor only", ScalingConfig{Factor: 2}, false},
		{"mirror size only", ScalingConfig{MirrorWidth: 800, MirrorHeight: 600}, false},
		{"mirror width only", ScalingConfig{MirrorWidth: 800}, false},
		{"downscale size only", ScalingConfig{DownscaleWidth: 640, DownscaleHeight: 360}, false},
		{"nothing", ScalingConfig{}, false},
		{"factor and mirror", ScalingConfig{Factor: 2, MirrorWidth: 800}, true},
		{"factor and downscale", ScalingConfig{Factor: 2, DownscaleWidth: 640, DownscaleHeight: 360}, true},
		{"mirror and downscale", ScalingConfig{MirrorHeight: 600, DownscaleWidth: 640, DownscaleHeight: 360}, true},
		{"downscale width alone", ScalingConfig{DownscaleWidth: 640}, true},
		{"negative factor", ScalingConfig{Factor: -1}, true},
		{"upscaling factor", ScalingConfig{Factor: 0.5}, true},
		{"unit factor", ScalingConfig{Factor: 1}, false},
		{"negative mirror", ScalingConfig{MirrorWidth: -5}, true},
		{"bad aspect", ScalingConfig{Factor: 2, Aspect: "squish"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Scaling = tt.scaling
			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidateRanges(t *testing.T) {
	cfg := Default()
	cfg.Capture.FPS = 0
	cfg.Debug.FontScale = 0
	cfg.LogLevel = "verbose"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidateBindAddress(t *testing.T) {
	for _, bind := range []string{"", "127.0.0.1", "0.0.0.0", "::1", "localhost"} {
		cfg := Default()
		cfg.BindAddress = bind
		if err := cfg.Validate(); err != nil {
			t.Fatalf("expected %q to validate, got %v", bind, err)
		}
	}

	cfg := Default()
	cfg.BindAddress = "127.0.0.1:8080"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if Default().BindAddress != "127.0.0.1" {
		t.Fatalf("expected loopback default, got %q", Default().BindAddress)
	}
}

func TestMirrorSize(t *testing.T) {
	source := geometry.Size{Width: 1920, Height: 1080}
	tests := []struct {
		name    string
		scaling ScalingConfig
		want    geometry.Size
	}{
		{"factor", ScalingConfig{Factor: 2}, geometry.Size{Width: 960, Height: 540}},
		{"fractional factor", ScalingConfig{Factor: 1.5}, geometry.Size{Width: 1280, Height: 720}},
		{"mirror size", ScalingConfig{MirrorWidth: 800, MirrorHeight: 600}, geometry.Size{Width: 800, Height: 600}},
		{"mirror width keeps aspect", ScalingConfig{MirrorWidth: 960}, geometry.Size{Width: 960, Height: 540}},
		{"mirror height keeps aspect", ScalingConfig{MirrorHeight: 270}, geometry.Size{Width: 480, Height: 270}},
		{"downscale size", ScalingConfig{DownscaleWidth: 640, DownscaleHeight: 480}, geometry.Size{Width: 640, Height: 480}},
		{"unset mirrors source", ScalingConfig{}, source},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Scaling = tt.scaling
			got, err := cfg.MirrorSize(source)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestMirrorSizeDegenerate(t *testing.T) {
	cfg := Default()
	if _, err := cfg.MirrorSize(geometry.Size{Width: 0, Height: 100}); !errors.Is(err, geometry.ErrDegenerateScale) {
		t.Fatalf("expected ErrDegenerateScale for empty source, got %v", err)
	}

	cfg.Scaling = ScalingConfig{Factor: 1000}
	if _, err := cfg.MirrorSize(geometry.Size{Width: 100, Height: 100}); !errors.Is(err, geometry.ErrDegenerateScale) {
		t.Fatalf("expected ErrDegenerateScale for zero mirror, got %v", err)
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m
}

func TestNewManagerCreatesDefaults(t *testing.T) {
	m := newTestManager(t)

	if _, err := os.Stat(m.GetConfigPath()); err != nil {
		t.Fatalf("expected config file to be written, got %v", err)
	}
	if got := m.Get().Capture.FPS; got != 60 {
		t.Fatalf("expected default fps 60, got %d", got)
	}
}

func TestManagerRoundTripsThroughDisk(t *testing.T) {
	m := newTestManager(t)
	if err := m.SetSource(SourceConfig{Query: "game.exe", Class: "UnityWndClass"}); err != nil {
		t.Fatalf("failed to set source: %v", err)
	}

	reloaded, err := NewManager(m.GetConfigPath())
	if err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	got := reloaded.Get().Source
	if got.Query != "game.exe" || got.Class != "UnityWndClass" {
		t.Fatalf("expected source to survive reload, got %+v", got)
	}
}

func TestManagerSet(t *testing.T) {
	m := newTestManager(t)

	if err := m.Set("server_port", "9090"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Get().ServerPort; got != 9090 {
		t.Fatalf("expected port 9090, got %d", got)
	}

	if err := m.Set("debug.show_fps", "true"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.Get().Debug.ShowFPS {
		t.Fatal("expected show_fps to be true")
	}

	if err := m.Set("capture.fps", "fast"); err == nil {
		t.Fatal("expected error for non-numeric fps")
	}

	// A mirror size next to the default factor violates the exclusive group.
	if err := m.Set("scaling.mirror_width", "800"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if got := m.Get().Scaling.MirrorWidth; got != 0 {
		t.Fatalf("expected rejected value to be rolled back, got %d", got)
	}

	if err := m.Set("no_such_key", "1"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestProfiles(t *testing.T) {
	m := newTestManager(t)

	p, err := m.CreateProfile("Big Game", SourceConfig{Query: "game.exe"}, ScalingConfig{MirrorWidth: 1280, Aspect: "stretch"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "big-game" {
		t.Fatalf("expected id big-game, got %s", p.ID)
	}

	dup, err := m.CreateProfile("Big Game", SourceConfig{Query: "other.exe"}, ScalingConfig{Factor: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dup.ID != "big-game-1" {
		t.Fatalf("expected id big-game-1, got %s", dup.ID)
	}

	if err := m.SetActiveProfile("big-game"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := m.Get()
	if cfg.Source.Query != "game.exe" || cfg.Scaling.MirrorWidth != 1280 || cfg.AspectMode() != geometry.AspectStretch {
		t.Fatalf("expected active profile to apply, got %+v / %+v", cfg.Source, cfg.Scaling)
	}

	if err := m.SetActiveProfile("missing"); err == nil {
		t.Fatal("expected error for unknown profile")
	}

	got, err := m.GetProfile("big-game-1")
	if err != nil || got.Source.Query != "other.exe" || got.Scaling.Factor != 3 {
		t.Fatalf("expected big-game-1, got %+v (%v)", got, err)
	}
	if _, err := m.GetProfile("missing"); err == nil {
		t.Fatal("expected error for unknown profile")
	}

	if err := m.DeleteProfile("big-game"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Get().ActiveProfileID != "" {
		t.Fatal("expected active profile to be cleared after delete")
	}
	if len(m.ListProfiles()) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(m.ListProfiles()))
	}

	if _, err := m.CreateProfile("bad", SourceConfig{}, ScalingConfig{Factor: 2, MirrorWidth: 10}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestSetScaling(t *testing.T) {
	m := newTestManager(t)

	if err := m.SetScaling(ScalingConfig{MirrorHeight: 540, Aspect: "maintain"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Get().Scaling; got.MirrorHeight != 540 || got.Factor != 0 {
		t.Fatalf("expected base scaling to change, got %+v", got)
	}

	if _, err := m.CreateProfile("p", SourceConfig{}, ScalingConfig{Factor: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.SetActiveProfile("p")
	if err := m.SetScaling(ScalingConfig{Factor: 4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Get().Scaling.Factor; got != 4 {
		t.Fatalf("expected active profile scaling 4, got %v", got)
	}

	m.SetActiveProfile("")
	if got := m.Get().Scaling.MirrorHeight; got != 540 {
		t.Fatalf("expected base scaling to be untouched, got %d", got)
	}

	if err := m.SetScaling(ScalingConfig{Factor: 2, MirrorWidth: 10}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
