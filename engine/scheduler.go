package engine

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stepgrid/clock"
	"stepgrid/timing"
)

// Options configures a Scheduler. Zero fields get the documented defaults.
type Options struct {
	// Config is the initial grid. Zero value means timing.Default().
	Config timing.Config
	// Model supplies the timing policy constants. Zero value means
	// timing.NewModel().
	Model timing.Model
	// StartBuffer is added to the clock on start/resume so the first
	// event is always schedulable. Default 5ms.
	StartBuffer float64
	// LookaheadFactor sizes the lookahead window as a multiple of the
	// ticker period, wide enough to tolerate tick jitter. Default 4.
	LookaheadFactor float64
	// ResyncThreshold is the stall gap, in seconds, beyond which the
	// scheduler jumps forward to the step at-or-after now instead of
	// replaying every missed step. Default 2s.
	ResyncThreshold float64
	// Rand drives humanization. Inject a seeded source for deterministic
	// tests. Default is a time-seeded source.
	Rand *rand.Rand
	// Logger receives scheduler diagnostics. Default is a no-op logger.
	Logger zerolog.Logger
	// Perf records latency and drift. Default is a fresh tracker.
	Perf *PerformanceTracker
}

// maxCatchUpSteps bounds the lookahead loop in a single tick. With resync
// handling long stalls this only trips on pathological clock jumps.
const maxCatchUpSteps = 1024

// Scheduler is the sequencer's timing core. It converts tempo, swing and
// pattern data into sink calls at absolute clock times, staying drift-free
// over arbitrarily long sessions by recomputing every step time from the
// absolute anchor startTime rather than accumulating durations.
//
// The invariant nextStepTime == startTime + stepCount*stepDuration holds
// whenever the scheduler is running.
//
// All state is guarded by one mutex: the tick handler, transport calls and
// configuration setters are mutually exclusive, so ticks never race with a
// tempo change. Calls into the sink and observers happen inside that
// critical section; they must be quick and must not call back in.
type Scheduler struct {
	clk      clock.Clock
	ticker   clock.Ticker
	provider PatternProvider
	sink     NoteSink
	model    timing.Model
	rng      *rand.Rand
	log      zerolog.Logger
	perf     *PerformanceTracker

	mu           sync.Mutex
	state        State
	cfg          timing.Config
	startTime    float64
	stepCount    int64
	currentStep  int
	nextStepTime float64

	startBuffer float64
	lookahead   float64
	resyncAfter float64

	stepObs  stepRegistry
	stateObs stateRegistry
}

// New constructs a stopped Scheduler. It rejects an invalid initial config.
func New(clk clock.Clock, ticker clock.Ticker, provider PatternProvider, sink NoteSink, opts Options) (*Scheduler, error) {
	cfg := opts.Config
	if cfg == (timing.Config{}) {
		cfg = timing.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model := opts.Model
	if model == (timing.Model{}) {
		model = timing.NewModel()
	}
	buffer := opts.StartBuffer
	if buffer <= 0 {
		buffer = 0.005
	}
	factor := opts.LookaheadFactor
	if factor <= 0 {
		factor = 4
	}
	resync := opts.ResyncThreshold
	if resync <= 0 {
		resync = 2.0
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	perf := opts.Perf
	if perf == nil {
		perf = NewPerformanceTracker(0)
	}
	return &Scheduler{
		clk:         clk,
		ticker:      ticker,
		provider:    provider,
		sink:        sink,
		model:       model,
		rng:         rng,
		log:         opts.Logger,
		perf:        perf,
		state:       StateStopped,
		cfg:         cfg,
		startBuffer: buffer,
		lookahead:   factor * ticker.Period().Seconds(),
		resyncAfter: resync,
	}, nil
}

// Start begins playback from step 0. Valid only from Stopped. A ticker
// failure leaves the scheduler Stopped and is returned to the caller.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return ErrNotStopped
	}
	now := s.clk.Now()
	s.startTime = now + s.startBuffer
	s.stepCount = 0
	s.currentStep = 0
	s.nextStepTime = s.startTime
	s.state = StateRunning
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.ticker.Start(s.tick); err != nil {
		s.mu.Lock()
		s.state = StateStopped
		s.resetLocked()
		failed := s.snapshotLocked()
		s.mu.Unlock()
		s.stateObs.notify(s.log, failed)
		return &TickerError{Op: "start", Err: err}
	}
	s.log.Info().Float64("startTime", snap.StartTime).Float64("bpm", snap.Config.BPM).Msg("playback started")
	s.stateObs.notify(s.log, snap)
	return nil
}

// Stop halts playback, clears all counters and discards events the sink has
// queued but not yet played. It is idempotent, safe from any state, and
// guarantees no further sink calls occur after it returns: an in-flight
// tick holds the state lock, so Stop cannot complete mid-dispatch.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.resetLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.ticker.Stop()
	if f, ok := s.sink.(SinkFlusher); ok {
		f.Flush()
	}
	s.log.Info().Msg("playback stopped")
	s.stateObs.notify(s.log, snap)
}

// Pause suspends playback, preserving the step position. Valid only from
// Running.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = StatePaused
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.ticker.Stop()
	s.log.Info().Int64("stepCount", snap.StepCount).Msg("playback paused")
	s.stateObs.notify(s.log, snap)
	return nil
}

// Resume continues playback from the paused position. Step numbering is
// unbroken: startTime is recomputed so the next step lands just after now
// while stepCount and currentStep carry on from where Pause left them.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return ErrNotPaused
	}
	now := s.clk.Now()
	dur := timing.StepDuration(s.cfg.BPM, s.cfg.Resolution)
	s.startTime = now + s.startBuffer - float64(s.stepCount)*dur
	s.nextStepTime = s.startTime + float64(s.stepCount)*dur
	s.state = StateRunning
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.ticker.Start(s.tick); err != nil {
		s.mu.Lock()
		s.state = StateStopped
		s.resetLocked()
		failed := s.snapshotLocked()
		s.mu.Unlock()
		s.stateObs.notify(s.log, failed)
		return &TickerError{Op: "resume", Err: err}
	}
	s.log.Info().Int64("stepCount", snap.StepCount).Msg("playback resumed")
	s.stateObs.notify(s.log, snap)
	return nil
}

// SetBPM changes the tempo. Out-of-range values are rejected with the state
// unchanged. While running, the grid is re-anchored from the current
// nextStepTime so the step in flight neither repeats nor gets skipped and
// no step is ever scheduled at or before its predecessor.
func (s *Scheduler) SetBPM(bpm float64) error {
	if err := timing.ValidateBPM(bpm); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.BPM = bpm
	s.reanchorLocked()
	s.log.Debug().Float64("bpm", bpm).Msg("tempo changed")
	return nil
}

// SetSwing changes the swing amount. Swing affects playback times only, so
// no re-anchoring is needed.
func (s *Scheduler) SetSwing(swing float64) error {
	if err := timing.ValidateSwing(swing); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Swing = swing
	return nil
}

// SetStepResolution changes the steps-per-cycle subdivision. Like a tempo
// change, a resolution change re-anchors the grid while running.
func (s *Scheduler) SetStepResolution(res int) error {
	if err := timing.ValidateResolution(res); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Resolution = res
	s.currentStep = int(s.stepCount % int64(res))
	s.reanchorLocked()
	s.log.Debug().Int("resolution", res).Msg("resolution changed")
	return nil
}

// reanchorLocked recomputes startTime for the current step duration while
// keeping nextStepTime fixed. The next unscheduled step keeps its scheduled
// time, and every step after it uses the new duration. Anchoring on the
// unchanged nextStepTime (rather than the raw clock) keeps scheduled times
// strictly increasing even when steps have already been dispatched into the
// lookahead window.
func (s *Scheduler) reanchorLocked() {
	if s.state != StateRunning {
		return
	}
	dur := timing.StepDuration(s.cfg.BPM, s.cfg.Resolution)
	s.startTime = s.nextStepTime - float64(s.stepCount)*dur
}

// OnStep registers a step-boundary observer and returns its unsubscribe
// function. Observers run inside the tick handler; they must be fast, must
// not block, and must not call back into the scheduler.
func (s *Scheduler) OnStep(fn StepFunc) (unsubscribe func()) {
	return s.stepObs.add(fn)
}

// OnStateChange registers a state-transition observer.
func (s *Scheduler) OnStateChange(fn StateFunc) (unsubscribe func()) {
	return s.stateObs.add(fn)
}

// Snapshot returns a copy of the scheduler state for display.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Diagnostics returns current timing health.
func (s *Scheduler) Diagnostics() Diagnostics {
	avgDrift, maxDrift, avgLat, maxLat, events := s.perf.Stats()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Diagnostics{
		Drift:       avgDrift,
		MaxDrift:    maxDrift,
		Jitter:      avgLat,
		MaxLatency:  maxLat,
		Events:      events,
		CurrentStep: s.currentStep,
		BPM:         s.cfg.BPM,
		Swing:       s.cfg.Swing,
	}
}

// Perf exposes the tracker so callers can install alert hooks or feed
// sink-side observations.
func (s *Scheduler) Perf() *PerformanceTracker { return s.perf }

func (s *Scheduler) snapshotLocked() Snapshot {
	return Snapshot{
		State:        s.state,
		CurrentStep:  s.currentStep,
		StepCount:    s.stepCount,
		StartTime:    s.startTime,
		NextStepTime: s.nextStepTime,
		Config:       s.cfg,
	}
}

func (s *Scheduler) resetLocked() {
	s.startTime = 0
	s.stepCount = 0
	s.currentStep = 0
	s.nextStepTime = 0
}

// tick is the lookahead loop, invoked by the ticker. It schedules every
// step whose bookkeeping time falls inside the lookahead window, advancing
// by absolute-time arithmetic: nextStepTime is always recomputed from
// startTime, never incremented, so floating-point error cannot accumulate.
func (s *Scheduler) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}

	now := s.clk.Now()
	dur := timing.StepDuration(s.cfg.BPM, s.cfg.Resolution)

	// After a long stall (suspended process, debugger, laptop lid) jump to
	// the step at-or-after now instead of replaying every missed step.
	if now-s.nextStepTime > s.resyncAfter {
		missed := int64(math.Ceil((now - s.startTime) / dur))
		s.log.Warn().
			Float64("gap", now-s.nextStepTime).
			Int64("from", s.stepCount).
			Int64("to", missed).
			Msg("stall detected, resynchronizing")
		s.stepCount = missed
		s.currentStep = int(s.stepCount % int64(s.cfg.Resolution))
		s.nextStepTime = s.startTime + float64(s.stepCount)*dur
	}

	horizon := now + s.lookahead
	for steps := 0; s.nextStepTime < horizon && steps < maxCatchUpSteps; steps++ {
		playTime := s.nextStepTime + s.model.SwingOffset(s.currentStep, dur, s.cfg.Swing)

		s.stepObs.notify(s.log, StepEvent{StepIndex: s.currentStep, ScheduledTime: playTime})
		s.dispatchLocked(s.currentStep, playTime, dur, now)

		s.stepCount++
		s.currentStep = int(s.stepCount % int64(s.cfg.Resolution))

		// Advance from the absolute anchor, never nextStepTime += dur.
		// The tracker records what accumulation would have drifted by.
		next := s.startTime + float64(s.stepCount)*dur
		s.perf.RecordDrift(s.nextStepTime+dur-next, s.stepCount)
		s.nextStepTime = next
	}
}

// dispatchLocked resolves the tracks active at a step and forwards one
// timed event per unmuted track to the sink. Humanization perturbs only the
// dispatched play time, never the bookkeeping time. A failed track is
// logged and skipped; the remaining tracks still dispatch.
func (s *Scheduler) dispatchLocked(stepIndex int, playTime, dur, now float64) {
	for _, ts := range s.provider.ActiveStepsAt(stepIndex) {
		if ts.Muted {
			continue
		}
		pt, vel := s.model.ApplyRandomization(playTime, dur, ts.Velocity, ts.Random, s.rng)
		if err := s.sink.Schedule(pt, ts.Sample, vel, ts.TrackID); err != nil {
			s.log.Warn().
				Err(err).
				Str("track", ts.TrackID).
				Int("step", stepIndex).
				Msg("note dispatch failed")
			continue
		}
		s.perf.RecordDispatch(pt-now, s.stepCount)
	}
}
