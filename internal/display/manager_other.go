//go:build !linux

package display

import (
	"image"

	"github.com/bryanchriswhite/downscaler/internal/capture"
	"github.com/bryanchriswhite/downscaler/internal/config"
	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/input"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

// Handlers receive mirror window events.
type Handlers struct {
	Resized func(geometry.Size)
	Pointer func(input.PointerEvent)
	Closed  func()
}

// Manager is unavailable on this platform; use the web viewer instead.
type Manager struct{}

func NewManager(config.DisplayConfig, geometry.AspectMode, Handlers) (*Manager, error) {
	return nil, ErrUnsupported
}

func (m *Manager) Start(geometry.Size) error               { return ErrUnsupported }
func (m *Manager) WindowID() window.Handle                 { return 0 }
func (m *Manager) Resize(geometry.Size)                    {}
func (m *Manager) SetAspect(geometry.AspectMode)           {}
func (m *Manager) Done() <-chan struct{}                   { return nil }
func (m *Manager) Stop()                                   {}
func (m *Manager) CreateSurface() (capture.Surface, error) { return nil, ErrUnsupported }
func (m *Manager) render(*image.RGBA) error                { return ErrUnsupported }
