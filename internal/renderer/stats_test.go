package renderer

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestFrameStatsLogsOncePerInterval(t *testing.T) {
	c := qt.New(t)
	logger, hook := test.NewNullLogger()
	s := newFrameStats(time.Second, logrus.NewEntry(logger))

	var clock time.Duration
	s.now = func() time.Duration { return clock }

	// 1ms of slack keeps the first tick off the zero sentinel.
	clock = time.Millisecond
	for i := 0; i < 100; i++ {
		s.frame()
		clock += 10 * time.Millisecond
	}
	c.Assert(hook.AllEntries(), qt.HasLen, 0)

	s.frame()
	c.Assert(hook.AllEntries(), qt.HasLen, 1)
	entry := hook.LastEntry()
	c.Assert(entry.Message, qt.Equals, "Frame statistics")
	c.Assert(entry.Data["frames"], qt.Equals, 100)
	c.Assert(entry.Data["avg_ms"], qt.Equals, 10.0)
	c.Assert(entry.Data["total"], qt.Equals, 101)

	s.frame()
	c.Assert(hook.AllEntries(), qt.HasLen, 1)
}

func TestFrameStatsDisabled(t *testing.T) {
	c := qt.New(t)
	logger, hook := test.NewNullLogger()
	s := newFrameStats(0, logrus.NewEntry(logger))
	s.now = func() time.Duration { return time.Hour }
	for i := 0; i < 10; i++ {
		s.frame()
	}
	c.Assert(hook.AllEntries(), qt.HasLen, 0)
}
