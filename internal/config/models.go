package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strings"

	"github.com/bryanchriswhite/downscaler/internal/geometry"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultBindAddress keeps the API, which can inject input, off the network.
const DefaultBindAddress = "127.0.0.1"

// SourceConfig identifies the window to mirror
type SourceConfig struct {
	// Query is a window title, or a process name when it contains ".exe" or
	// starts with "process:".
	Query string `json:"query" yaml:"query" mapstructure:"query"`
	Class string `json:"class,omitempty" yaml:"class,omitempty" mapstructure:"class"`
}

// ScalingConfig controls the mirror size. The three ways of sizing the
// mirror are mutually exclusive.
type ScalingConfig struct {
	MirrorWidth     int     `json:"mirror_width,omitempty" yaml:"mirror_width,omitempty" mapstructure:"mirror_width"`
	MirrorHeight    int     `json:"mirror_height,omitempty" yaml:"mirror_height,omitempty" mapstructure:"mirror_height"`
	Factor          float64 `json:"factor,omitempty" yaml:"factor,omitempty" mapstructure:"factor"`
	DownscaleWidth  int     `json:"downscale_width,omitempty" yaml:"downscale_width,omitempty" mapstructure:"downscale_width"`
	DownscaleHeight int     `json:"downscale_height,omitempty" yaml:"downscale_height,omitempty" mapstructure:"downscale_height"`
	Aspect          string  `json:"aspect" yaml:"aspect" mapstructure:"aspect"`
}

// CaptureConfig represents capture pipeline configuration
type CaptureConfig struct {
	FPS int `json:"fps" yaml:"fps" mapstructure:"fps"`
}

// InputConfig represents pointer forwarding configuration
type InputConfig struct {
	Enabled        bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	MoveThrottleMS int  `json:"move_throttle_ms" yaml:"move_throttle_ms" mapstructure:"move_throttle_ms"`
	MaxDepth       int  `json:"max_depth" yaml:"max_depth" mapstructure:"max_depth"`
}

// DebugConfig represents the debug overlay drawn on the mirror
type DebugConfig struct {
	Enabled              bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ShowFPS              bool    `json:"show_fps" yaml:"show_fps" mapstructure:"show_fps"`
	ShowMouseCoordinates bool    `json:"show_mouse_coordinates" yaml:"show_mouse_coordinates" mapstructure:"show_mouse_coordinates"`
	FontScale            float64 `json:"font_scale" yaml:"font_scale" mapstructure:"font_scale"`
}

// DisplayConfig represents the local mirror window
type DisplayConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	X       int    `json:"x" yaml:"x" mapstructure:"x"`
	Y       int    `json:"y" yaml:"y" mapstructure:"y"`
	Title   string `json:"title" yaml:"title" mapstructure:"title"`
}

// Profile is a named source and scaling preset
type Profile struct {
	ID      string        `json:"id" yaml:"id" mapstructure:"id"`
	Name    string        `json:"name" yaml:"name" mapstructure:"name"`
	Source  SourceConfig  `json:"source" yaml:"source" mapstructure:"source"`
	Scaling ScalingConfig `json:"scaling" yaml:"scaling" mapstructure:"scaling"`
}

// Config represents the application configuration
type Config struct {
	Source      SourceConfig  `json:"source" yaml:"source" mapstructure:"source"`
	Scaling     ScalingConfig `json:"scaling" yaml:"scaling" mapstructure:"scaling"`
	Capture     CaptureConfig `json:"capture" yaml:"capture" mapstructure:"capture"`
	Input       InputConfig   `json:"input" yaml:"input" mapstructure:"input"`
	Debug       DebugConfig   `json:"debug" yaml:"debug" mapstructure:"debug"`
	Display     DisplayConfig `json:"display" yaml:"display" mapstructure:"display"`
	ServerPort  int           `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	BindAddress string        `json:"bind_address" yaml:"bind_address" mapstructure:"bind_address"`
	LogLevel    string        `json:"log_level" yaml:"log_level" mapstructure:"log_level"`

	// Profile management
	ActiveProfileID string    `json:"active_profile_id" yaml:"active_profile_id" mapstructure:"active_profile_id"`
	Profiles        []Profile `json:"profiles" yaml:"profiles" mapstructure:"profiles"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Scaling: ScalingConfig{
			Factor: 2,
			Aspect: geometry.AspectMaintain.String(),
		},
		Capture: CaptureConfig{FPS: 60},
		Input: InputConfig{
			Enabled:        true,
			MoveThrottleMS: 16,
			MaxDepth:       64,
		},
		Debug: DebugConfig{
			FontScale: 1,
		},
		Display: DisplayConfig{
			Enabled: true,
			Title:   "downscaler",
		},
		ServerPort:  8080,
		BindAddress: DefaultBindAddress,
		LogLevel:    "info",
		Profiles:    []Profile{},
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks value ranges and the mutually exclusive scaling options.
func (c *Config) Validate() error {
	var problems []string

	s := c.Scaling
	modes := 0
	if s.MirrorWidth != 0 || s.MirrorHeight != 0 {
		modes++
	}
	if s.Factor != 0 {
		modes++
	}
	if s.DownscaleWidth != 0 || s.DownscaleHeight != 0 {
		modes++
	}
	if modes > 1 {
		problems = append(problems, "scaling: mirror size, factor and downscale size are mutually exclusive")
	}
	if s.MirrorWidth < 0 || s.MirrorHeight < 0 {
		problems = append(problems, "scaling: mirror size must not be negative")
	}
	if s.Factor < 0 || math.IsNaN(s.Factor) || math.IsInf(s.Factor, 0) {
		problems = append(problems, "scaling.factor must be a positive number")
	} else if s.Factor > 0 && s.Factor < 1 {
		problems = append(problems, "scaling.factor below 1 would upscale; set a mirror size instead")
	}
	if s.DownscaleWidth < 0 || s.DownscaleHeight < 0 {
		problems = append(problems, "scaling: downscale size must not be negative")
	}
	if (s.DownscaleWidth == 0) != (s.DownscaleHeight == 0) {
		problems = append(problems, "scaling: downscale_width and downscale_height must be set together")
	}
	if _, err := geometry.ParseAspectMode(s.Aspect); err != nil {
		problems = append(problems, err.Error())
	}

	if c.Capture.FPS < 1 || c.Capture.FPS > 240 {
		problems = append(problems, fmt.Sprintf("capture.fps must be between 1 and 240, got %d", c.Capture.FPS))
	}
	if c.Input.MoveThrottleMS < 0 {
		problems = append(problems, "input.move_throttle_ms must not be negative")
	}
	if c.Input.MaxDepth < 0 {
		problems = append(problems, "input.max_depth must not be negative")
	}
	if c.Debug.FontScale <= 0 {
		problems = append(problems, "debug.font_scale must be greater than 0")
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		problems = append(problems, fmt.Sprintf("server_port out of range: %d", c.ServerPort))
	}
	if c.BindAddress != "" && c.BindAddress != "localhost" && net.ParseIP(c.BindAddress) == nil {
		problems = append(problems, fmt.Sprintf("bind_address must be an IP address or localhost, got %q", c.BindAddress))
	}
	if c.LogLevel != "" && !validLogLevels[c.LogLevel] {
		problems = append(problems, fmt.Sprintf("invalid log level: %s (use: debug, info, warn, error)", c.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// AspectMode returns the parsed aspect mode, defaulting to maintain.
func (c *Config) AspectMode() geometry.AspectMode {
	mode, err := geometry.ParseAspectMode(c.Scaling.Aspect)
	if err != nil {
		return geometry.AspectMaintain
	}
	return mode
}

// MirrorSize resolves the mirror surface size for a source of the given
// size. An explicit mirror size with one dimension left at zero keeps the
// source aspect ratio. With no scaling option set, the mirror matches the
// source.
func (c *Config) MirrorSize(source geometry.Size) (geometry.Size, error) {
	if source.Empty() {
		return geometry.Size{}, fmt.Errorf("%w: source %s", geometry.ErrDegenerateScale, source)
	}

	s := c.Scaling
	var out geometry.Size
	switch {
	case s.MirrorWidth > 0 && s.MirrorHeight > 0:
		out = geometry.Size{Width: s.MirrorWidth, Height: s.MirrorHeight}
	case s.MirrorWidth > 0:
		out = geometry.Size{
			Width:  s.MirrorWidth,
			Height: int(math.Round(float64(s.MirrorWidth) * float64(source.Height) / float64(source.Width))),
		}
	case s.MirrorHeight > 0:
		out = geometry.Size{
			Width:  int(math.Round(float64(s.MirrorHeight) * float64(source.Width) / float64(source.Height))),
			Height: s.MirrorHeight,
		}
	case s.Factor > 0:
		out = geometry.Size{
			Width:  int(math.Round(float64(source.Width) / s.Factor)),
			Height: int(math.Round(float64(source.Height) / s.Factor)),
		}
	case s.DownscaleWidth > 0 && s.DownscaleHeight > 0:
		out = geometry.Size{Width: s.DownscaleWidth, Height: s.DownscaleHeight}
	default:
		out = source
	}

	if out.Empty() {
		return geometry.Size{}, fmt.Errorf("%w: mirror %s for source %s", geometry.ErrDegenerateScale, out, source)
	}
	return out, nil
}

// ApplyProfile overlays p's source and scaling onto c.
func (c *Config) ApplyProfile(p Profile) {
	if p.Source.Query != "" {
		c.Source = p.Source
	}
	c.Scaling = p.Scaling
}
