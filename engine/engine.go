// Package engine contains the sequencer's timing core: the scheduler state
// machine, its lookahead loop, note dispatch, and timing diagnostics.
//
// The engine decides when a sound plays, never what it sounds like. Pattern
// data, audio output and UI are collaborators injected through the
// interfaces below.
package engine

import (
	"errors"
	"fmt"

	"stepgrid/timing"
)

// State is the scheduler's lifecycle state.
type State int

const (
	StateStopped State = iota
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transition errors. Setter validation errors are *timing.ConfigError.
var (
	ErrNotStopped = errors.New("engine: start requires stopped state")
	ErrNotRunning = errors.New("engine: pause requires running state")
	ErrNotPaused  = errors.New("engine: resume requires paused state")
)

// TickerError wraps a failure of the periodic wakeup source. It is fatal to
// playback: the scheduler transitions to Stopped before surfacing it, since
// silently keeping the Running state would leave the UI believing playback
// is active while nothing plays.
type TickerError struct {
	Op  string // "start" or "resume"
	Err error
}

func (e *TickerError) Error() string {
	return fmt.Sprintf("engine: ticker failed during %s: %v", e.Op, e.Err)
}

func (e *TickerError) Unwrap() error { return e.Err }

// SampleRef identifies the sound a step triggers. The engine passes it
// through untouched; only the sink interprets it.
type SampleRef struct {
	Name    string
	Note    uint8
	Channel uint8
}

// TrackStep is one track's contribution to a given step index, as resolved
// by the pattern provider. Muted is precomputed by the provider (mute and
// solo rules included) so the dispatcher can skip the track before any sink
// call is made.
type TrackStep struct {
	TrackID  string
	Sample   SampleRef
	Velocity float64 // 0.0 - 1.0
	Muted    bool
	Random   timing.RandomSettings
}

// PatternProvider resolves which tracks have an active step at an index.
// It is called from inside the tick handler and must not call back into
// the scheduler.
type PatternProvider interface {
	ActiveStepsAt(stepIndex int) []TrackStep
}

// NoteSink receives timed note events ahead of their play time. Schedule
// must accept times in the near future (within the lookahead window) and
// guarantee playback at that time; the scheduler never blocks on the sound
// actually starting.
type NoteSink interface {
	Schedule(playTime float64, sample SampleRef, velocity float64, trackID string) error
}

// SinkFlusher is optionally implemented by sinks that queue events. Stop
// flushes the sink so that notes handed off but not yet played are
// discarded.
type SinkFlusher interface {
	Flush()
}

// StepEvent describes one scheduled step boundary, as delivered to step
// observers. Events are transient and never persisted.
type StepEvent struct {
	StepIndex     int
	ScheduledTime float64 // playback time, swing included
}

// Snapshot is a read-only copy of the scheduler state, safe to hand to UI
// code on any goroutine.
type Snapshot struct {
	State        State
	CurrentStep  int
	StepCount    int64
	StartTime    float64
	NextStepTime float64
	Config       timing.Config
}

// Diagnostics summarizes timing health for display and alerting.
type Diagnostics struct {
	Drift       float64 // seconds, rolling average of |bookkeeping error|
	MaxDrift    float64
	Jitter      float64 // seconds, rolling average dispatch lead shortfall
	MaxLatency  float64
	Events      int64
	CurrentStep int
	BPM         float64
	Swing       float64
}
