package mirror

import (
	"fmt"

	"github.com/bryanchriswhite/downscaler/internal/capture"
	"github.com/bryanchriswhite/downscaler/internal/config"
	"github.com/bryanchriswhite/downscaler/internal/input"
	"github.com/bryanchriswhite/downscaler/internal/overlay"
)

// newDebugOverlay builds the FPS and pointer widgets selected by cfg, or
// returns nil when none are. The text callbacks run on the frame goroutine
// and must not take the controller lock.
func newDebugOverlay(cfg config.DebugConfig, stats func() (capture.StatsSnapshot, bool), pointer func() (input.Coordinates, bool)) *overlay.Manager {
	m := overlay.NewManager()
	if cfg.ShowFPS {
		m.AddWidget(overlay.NewTextWidget("fps", cfg.FontScale, func() string {
			return fpsText(stats())
		}))
	}
	if cfg.ShowMouseCoordinates {
		m.AddWidget(overlay.NewTextWidget("mouse", cfg.FontScale, func() string {
			return pointerText(pointer())
		}))
	}
	if m.Len() == 0 {
		return nil
	}
	return m
}

func fpsText(s capture.StatsSnapshot, ok bool) string {
	if !ok || s.Frames == 0 {
		return "-- fps"
	}
	return fmt.Sprintf("%.1f fps  %.2f ms", s.FPS, float64(s.FrameTime.Microseconds())/1000)
}

func pointerText(p input.Coordinates, ok bool) string {
	if !ok {
		return "mouse: --"
	}
	return fmt.Sprintf("absolute %d, %d\nsource   %d, %d\nmirror   %d, %d (%.0f%%, %.0f%%)",
		p.Absolute.X, p.Absolute.Y,
		p.Source.X, p.Source.Y,
		p.Local.X, p.Local.Y, p.PercentX*100, p.PercentY*100)
}
