// Package output publishes mirrored frames to remote viewers.
package output

import (
	"github.com/bryanchriswhite/downscaler/internal/capture"
	"github.com/bryanchriswhite/downscaler/internal/geometry"
)

// Output is a remote view of the mirror. It is a capture.Compositor so a
// capture session can present into it, and it follows the mirror size so
// viewer coordinates stay mirror-local.
type Output interface {
	capture.Compositor

	Start() error
	Stop() error
	Name() string
	IsRunning() bool

	// SetSize changes the size frames are delivered at.
	SetSize(size geometry.Size)
	// SetAspect changes how frames are fitted into that size.
	SetAspect(mode geometry.AspectMode)
}

// Config holds common configuration for all output types. Width and Height
// are the initial frame size; zero keeps the presented size.
type Config struct {
	Width   int
	Height  int
	FPS     int
	Quality int
}
