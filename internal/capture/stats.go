package capture

import (
	"sync"
	"time"

	"github.com/bryanchriswhite/downscaler/internal/logger"
)

// StatsInterval is how often frame statistics are recomputed.
const StatsInterval = 750 * time.Millisecond

// StatsSnapshot is the most recent statistics report.
type StatsSnapshot struct {
	FPS       float64       `json:"fps"`
	FrameTime time.Duration `json:"frame_time_ns"`
	Frames    uint64        `json:"frames"`
	Resizes   uint64        `json:"resizes"`
}

// Stats accumulates presented frames and reports FPS and average frame
// time once per interval.
type Stats struct {
	mu       sync.Mutex
	interval time.Duration

	windowStart time.Time
	count       int
	busy        time.Duration

	last StatsSnapshot
}

// NewStats creates a Stats reporting every interval.
func NewStats(interval time.Duration) *Stats {
	if interval <= 0 {
		interval = StatsInterval
	}
	return &Stats{interval: interval}
}

// Record adds one presented frame that finished at `at` and took `took`.
func (s *Stats) Record(at time.Time, took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.windowStart.IsZero() {
		s.windowStart = at
	}
	s.count++
	s.busy += took
	s.last.Frames++

	elapsed := at.Sub(s.windowStart)
	if elapsed < s.interval {
		return
	}

	s.last.FPS = float64(s.count) / elapsed.Seconds()
	s.last.FrameTime = s.busy / time.Duration(s.count)

	logger.WithComponent("capture-stats").Debug().
		Float64("fps", s.last.FPS).
		Dur("frame_time", s.last.FrameTime).
		Uint64("frames", s.last.Frames).
		Msg("Frame statistics")

	s.windowStart = at
	s.count = 0
	s.busy = 0
}

func (s *Stats) recordResize() {
	s.mu.Lock()
	s.last.Resizes++
	s.mu.Unlock()
}

// Snapshot returns the last report.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
