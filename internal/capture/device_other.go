//go:build !linux && !windows

package capture

import (
	"fmt"
	"runtime"

	"github.com/bryanchriswhite/downscaler/internal/window"
)

// OpenDevice reports that no capture device exists for this platform.
func OpenDevice(_ window.Backend, _ int) (*PollingDevice, error) {
	return nil, fmt.Errorf("%w: no capture device for %s", ErrCaptureInit, runtime.GOOS)
}
