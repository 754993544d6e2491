// Package overlay draws debug widgets onto mirrored frames.
package overlay

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/downscaler/internal/logger"
)

const (
	margin = 8
	gap    = 4
)

// Manager stacks widgets vertically from the top-left corner of each frame
// in the order they were added.
type Manager struct {
	mu      sync.RWMutex
	widgets []Widget
}

// NewManager creates a new overlay manager
func NewManager() *Manager {
	return &Manager{}
}

// AddWidget adds a widget to the overlay
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.widgets {
		if w.ID() == widget.ID() {
			return fmt.Errorf("widget with ID %s already exists", widget.ID())
		}
	}

	m.widgets = append(m.widgets, widget)
	logger.WithComponent("overlay").Debug().Str("id", widget.ID()).Msg("Added widget")
	return nil
}

// Len returns the number of widgets.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.widgets)
}

// Render draws every widget onto img and returns the area each one covered,
// keyed by ID. Widgets with nothing to show take no space.
func (m *Manager) Render(img *image.RGBA) map[string]image.Rectangle {
	m.mu.RLock()
	widgets := make([]Widget, len(m.widgets))
	copy(widgets, m.widgets)
	m.mu.RUnlock()

	areas := make(map[string]image.Rectangle, len(widgets))
	at := img.Bounds().Min.Add(image.Pt(margin, margin))
	for _, widget := range widgets {
		area, err := widget.Render(img, at)
		if err != nil {
			logger.WithComponent("overlay").Debug().Err(err).Str("id", widget.ID()).Msg("Failed to render widget")
			continue
		}
		if area.Empty() {
			continue
		}
		areas[widget.ID()] = area
		at.Y = area.Max.Y + gap
	}
	return areas
}
