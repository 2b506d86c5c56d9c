package engine

import (
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// AnomalyKind classifies a timing anomaly.
type AnomalyKind int

const (
	// AnomalyDrift means the bookkeeping time diverged from the absolute
	// anchor beyond tolerance. This should never happen; it indicates a
	// defect, not load.
	AnomalyDrift AnomalyKind = iota
	// AnomalyLateDispatch means a note was handed to the sink at or after
	// its play time, so the sink had no headroom.
	AnomalyLateDispatch
)

func (k AnomalyKind) String() string {
	switch k {
	case AnomalyDrift:
		return "drift"
	case AnomalyLateDispatch:
		return "late-dispatch"
	default:
		return "unknown"
	}
}

// Anomaly is reported to the alert callback when an observation crosses its
// threshold. Anomalies are diagnostic only; the scheduler keeps running.
type Anomaly struct {
	Kind      AnomalyKind
	Value     float64
	Threshold float64
	StepCount int64
}

// PerformanceTracker records scheduling latency and timing drift over a
// rolling window. It is purely observational: nothing here feeds back into
// scheduling decisions.
//
// Construct one per session and share it by reference; there is no global
// instance.
type PerformanceTracker struct {
	mu sync.Mutex

	drift   *rollingStat
	latency *rollingStat
	events  int64

	driftTolerance float64
	lateTolerance  float64

	alertFn func(Anomaly)
	limiter *rate.Limiter
}

// NewPerformanceTracker returns a tracker with a rolling window of the
// given size (<=0 defaults to 256 observations).
func NewPerformanceTracker(window int) *PerformanceTracker {
	if window <= 0 {
		window = 256
	}
	return &PerformanceTracker{
		drift:          newRollingStat(window),
		latency:        newRollingStat(window),
		driftTolerance: 1e-9,
		lateTolerance:  0,
		// A wedged sink can go late on every step; one alert per second
		// with a small burst is plenty for diagnostics.
		limiter: rate.NewLimiter(rate.Limit(1), 3),
	}
}

// SetAlert installs the anomaly callback. Alerts are rate limited so a
// persistent fault cannot flood the receiver.
func (p *PerformanceTracker) SetAlert(fn func(Anomaly)) {
	p.mu.Lock()
	p.alertFn = fn
	p.mu.Unlock()
}

// RecordDrift records the absolute divergence between nextStepTime and its
// expected value from the absolute anchor.
func (p *PerformanceTracker) RecordDrift(drift float64, stepCount int64) {
	d := math.Abs(drift)
	p.mu.Lock()
	p.drift.add(d)
	alert := p.alertFn
	over := d > p.driftTolerance
	p.mu.Unlock()
	if over && alert != nil && p.limiter.Allow() {
		alert(Anomaly{Kind: AnomalyDrift, Value: d, Threshold: p.driftTolerance, StepCount: stepCount})
	}
}

// RecordDispatch records how far ahead of its play time a note was handed
// to the sink. A negative lead means the note was already late.
func (p *PerformanceTracker) RecordDispatch(lead float64, stepCount int64) {
	late := 0.0
	if lead < 0 {
		late = -lead
	}
	p.mu.Lock()
	p.latency.add(late)
	p.events++
	alert := p.alertFn
	over := late > p.lateTolerance && lead < 0
	p.mu.Unlock()
	if over && alert != nil && p.limiter.Allow() {
		alert(Anomaly{Kind: AnomalyLateDispatch, Value: late, Threshold: p.lateTolerance, StepCount: stepCount})
	}
}

// Stats returns the rolling averages and maxima.
func (p *PerformanceTracker) Stats() (avgDrift, maxDrift, avgLatency, maxLatency float64, events int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drift.avg(), p.drift.max(), p.latency.avg(), p.latency.max(), p.events
}

// rollingStat keeps a fixed-size ring of observations.
type rollingStat struct {
	buf  []float64
	next int
	n    int
}

func newRollingStat(size int) *rollingStat {
	return &rollingStat{buf: make([]float64, size)}
}

func (r *rollingStat) add(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

func (r *rollingStat) avg() float64 {
	if r.n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < r.n; i++ {
		sum += r.buf[i]
	}
	return sum / float64(r.n)
}

func (r *rollingStat) max() float64 {
	m := 0.0
	for i := 0; i < r.n; i++ {
		if r.buf[i] > m {
			m = r.buf[i]
		}
	}
	return m
}
