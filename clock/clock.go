// Package clock provides the time sources the sequencer engine schedules
// against: a monotonic audio clock measured in seconds, and a coarse
// periodic ticker that wakes the lookahead loop.
package clock

import "time"

// Clock is a monotonic, high-resolution time source. Now returns seconds
// since an arbitrary origin and never decreases. It is the single source
// of truth for "now" shared by the scheduler and the output sink.
type Clock interface {
	Now() float64
}

type monotonicClock struct {
	origin time.Time
}

// NewMonotonic returns a Clock backed by the runtime's monotonic clock,
// with its origin at the moment of the call.
func NewMonotonic() Clock {
	return &monotonicClock{origin: time.Now()}
}

func (c *monotonicClock) Now() float64 {
	return time.Since(c.origin).Seconds()
}
