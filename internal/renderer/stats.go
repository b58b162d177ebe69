package renderer

import (
	"time"

	"github.com/loov/hrtime"
	"github.com/sirupsen/logrus"
)

// frameStats accumulates presented-frame intervals and logs a summary once
// per interval. A zero interval disables it.
type frameStats struct {
	interval time.Duration
	now      func() time.Duration
	log      *logrus.Entry

	windowStart time.Duration
	last        time.Duration
	frames      int
	busiest     time.Duration
	total       int
}

func newFrameStats(interval time.Duration, log *logrus.Entry) *frameStats {
	return &frameStats{interval: interval, now: hrtime.Now, log: log}
}

func (s *frameStats) frame() {
	if s.interval <= 0 {
		return
	}
	now := s.now()
	s.total++
	if s.last == 0 {
		s.windowStart, s.last = now, now
		return
	}

	if d := now - s.last; d > s.busiest {
		s.busiest = d
	}
	s.frames++
	s.last = now

	elapsed := now - s.windowStart
	if elapsed < s.interval {
		return
	}
	avg := elapsed / time.Duration(s.frames)
	s.log.WithFields(logrus.Fields{
		"frames":     s.frames,
		"fps":        float64(s.frames) / elapsed.Seconds(),
		"avg_ms":     float64(avg) / float64(time.Millisecond),
		"slowest_ms": float64(s.busiest) / float64(time.Millisecond),
		"total":      s.total,
	}).Info("Frame statistics")

	s.windowStart = now
	s.frames = 0
	s.busiest = 0
}
