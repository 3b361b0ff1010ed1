package chat

import (
	"sync/atomic"
	"time"
)

// monotonicClock hands out UTC instants at microsecond precision, strictly increasing across calls.
type monotonicClock struct {
	now  func() time.Time
	last atomic.Int64 // unix µs
}

func newMonotonicClock(now func() time.Time) *monotonicClock {
	if now == nil {
		now = time.Now
	}
	return &monotonicClock{now: now}
}

func (c *monotonicClock) Now() time.Time {
	for {
		prev := c.last.Load()
		ts := c.now().UnixMicro()
		if ts <= prev {
			ts = prev + 1
		}
		if c.last.CompareAndSwap(prev, ts) {
			return time.UnixMicro(ts).UTC()
		}
	}
}
