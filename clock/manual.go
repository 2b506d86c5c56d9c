package clock

import (
	"sync"
	"time"
)

// Manual is a Clock driven by explicit Advance/Set calls. It exists for
// deterministic tests and offline rendering, where scheduling must not
// depend on wall time.
type Manual struct {
	mu  sync.Mutex
	now float64
}

// NewManual returns a Manual clock starting at t seconds.
func NewManual(t float64) *Manual {
	return &Manual{now: t}
}

func (m *Manual) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d seconds. Negative deltas are ignored
// so the clock stays monotonic.
func (m *Manual) Advance(d float64) {
	if d < 0 {
		return
	}
	m.mu.Lock()
	m.now += d
	m.mu.Unlock()
}

// Set jumps the clock to t seconds if t is ahead of the current time.
func (m *Manual) Set(t float64) {
	m.mu.Lock()
	if t > m.now {
		m.now = t
	}
	m.mu.Unlock()
}

// ManualTicker is a Ticker fired by explicit Fire calls, for tests that
// step the lookahead loop by hand.
type ManualTicker struct {
	mu      sync.Mutex
	fn      func()
	period  time.Duration
	started bool
}

// NewManualTicker returns a ManualTicker reporting the given period.
func NewManualTicker(period time.Duration) *ManualTicker {
	return &ManualTicker{period: period}
}

func (t *ManualTicker) Period() time.Duration { return t.period }

func (t *ManualTicker) Start(fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrTickerRunning
	}
	t.fn = fn
	t.started = true
	return nil
}

func (t *ManualTicker) Stop() {
	t.mu.Lock()
	t.fn = nil
	t.started = false
	t.mu.Unlock()
}

// Fire invokes the registered callback synchronously. It is a no-op when
// the ticker is stopped.
func (t *ManualTicker) Fire() {
	t.mu.Lock()
	fn := t.fn
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Running reports whether a callback is registered.
func (t *ManualTicker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}
