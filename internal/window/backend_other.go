//go:build !linux && !windows

package window

import (
	"fmt"
	"runtime"
)

// Open connects to the platform window system.
func Open() (Backend, error) {
	return nil, fmt.Errorf("no window backend for %s", runtime.GOOS)
}
