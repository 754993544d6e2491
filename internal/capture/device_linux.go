//go:build linux

package capture

import (
	"fmt"

	"github.com/BurntSushi/xgbutil"

	"github.com/bryanchriswhite/downscaler/internal/window"
)

// OpenDevice creates a polling device that shares the backend's X
// connection.
func OpenDevice(b window.Backend, fps int) (*PollingDevice, error) {
	xb, ok := b.(interface{ XUtil() *xgbutil.XUtil })
	if !ok {
		return nil, fmt.Errorf("%w: backend %s has no X connection", ErrCaptureInit, b.Name())
	}
	return NewPollingDevice(NewX11Grabber(xb.XUtil().Conn()), fps), nil
}
