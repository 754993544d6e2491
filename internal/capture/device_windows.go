//go:build windows

package capture

import (
	"github.com/bryanchriswhite/downscaler/internal/window"
)

// OpenDevice creates a polling device backed by GDI PrintWindow.
func OpenDevice(_ window.Backend, fps int) (*PollingDevice, error) {
	g, err := NewGDIGrabber()
	if err != nil {
		return nil, err
	}
	return NewPollingDevice(g, fps), nil
}
