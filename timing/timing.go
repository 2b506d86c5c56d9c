// Package timing holds the pure tempo math of the sequencer: step duration,
// swing offsets, and humanization. Nothing here keeps state or touches a
// clock; the scheduler owns all bookkeeping.
package timing

import (
	"fmt"
	"math/rand"
)

// Valid configuration ranges. Values outside these are rejected, never
// silently clamped.
const (
	MinBPM = 60.0
	MaxBPM = 200.0

	MinSwing = 0.0
	MaxSwing = 100.0
)

// Resolutions lists the supported steps-per-cycle subdivisions.
var Resolutions = []int{8, 16, 32, 64}

// ConfigError reports a rejected configuration value. The setter that
// returned it left all state unchanged.
type ConfigError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("timing: invalid %s %g: %s", e.Field, e.Value, e.Reason)
}

// Config is the trio of knobs that define the grid: tempo, swing amount and
// steps per pattern cycle.
type Config struct {
	BPM        float64 `json:"bpm" yaml:"bpm"`
	Swing      float64 `json:"swing" yaml:"swing"`
	Resolution int     `json:"resolution" yaml:"resolution"`
}

// Default returns the standard 16-step, straight-timing grid at 120 BPM.
func Default() Config {
	return Config{BPM: 120, Swing: 0, Resolution: 16}
}

// Validate checks every field and returns the first violation.
func (c Config) Validate() error {
	if err := ValidateBPM(c.BPM); err != nil {
		return err
	}
	if err := ValidateSwing(c.Swing); err != nil {
		return err
	}
	return ValidateResolution(c.Resolution)
}

// ValidateBPM rejects tempos outside [MinBPM, MaxBPM].
func ValidateBPM(bpm float64) error {
	if bpm < MinBPM || bpm > MaxBPM {
		return &ConfigError{Field: "bpm", Value: bpm, Reason: fmt.Sprintf("must be in [%g, %g]", MinBPM, MaxBPM)}
	}
	return nil
}

// ValidateSwing rejects swing percentages outside [0, 100].
func ValidateSwing(swing float64) error {
	if swing < MinSwing || swing > MaxSwing {
		return &ConfigError{Field: "swing", Value: swing, Reason: fmt.Sprintf("must be in [%g, %g]", MinSwing, MaxSwing)}
	}
	return nil
}

// ValidateResolution rejects anything but the supported subdivisions.
func ValidateResolution(res int) error {
	for _, r := range Resolutions {
		if res == r {
			return nil
		}
	}
	return &ConfigError{Field: "resolution", Value: float64(res), Reason: "must be one of 8, 16, 32, 64"}
}

// StepDuration returns the length of one step in seconds. Resolution counts
// steps per 4/4 bar, so 16 steps at 120 BPM is 0.125s per step. Doubling
// either the BPM or the resolution halves the duration.
func StepDuration(bpm float64, resolution int) float64 {
	return (60.0 / bpm) / (float64(resolution) / 4.0)
}

// RandomSettings are per-track humanization amounts, read from pattern data.
// Amounts are percentages in [0, 100].
type RandomSettings struct {
	TimingEnabled  bool    `json:"timingEnabled" yaml:"timingEnabled"`
	TimingAmount   float64 `json:"timingAmount" yaml:"timingAmount"`
	VelocityEnabled bool   `json:"velocityEnabled" yaml:"velocityEnabled"`
	VelocityAmount float64 `json:"velocityAmount" yaml:"velocityAmount"`
}

// Model bundles the timing policy constants. The caps are policy, not
// derived values, so they stay adjustable rather than hard-coded into the
// math.
type Model struct {
	// SwingMax is the largest fraction of a step an odd step may be
	// delayed at 100% swing.
	SwingMax float64
	// JitterMax is the largest fraction of a step that timing
	// randomization may move a note, in either direction, at 100% amount.
	JitterMax float64
	// VelocityFloor is the lowest velocity humanization may produce.
	VelocityFloor float64
}

// NewModel returns a Model with the stock policy: swing up to 30% of a
// step, timing jitter up to 10%, velocities floored at 0.1.
func NewModel() Model {
	return Model{SwingMax: 0.3, JitterMax: 0.1, VelocityFloor: 0.1}
}

// SwingOffset returns the playback delay for a step. Even steps are never
// shifted; odd steps are delayed by up to SwingMax of the step duration,
// scaled by the swing percentage. The offset never pushes a step past the
// following step's nominal time.
func (m Model) SwingOffset(stepIndex int, stepDuration, swingPercent float64) float64 {
	if stepIndex%2 == 0 {
		return 0
	}
	off := stepDuration * m.SwingMax * (swingPercent / 100.0)
	if off >= stepDuration {
		off = stepDuration * 0.99
	}
	return off
}

// ApplyRandomization humanizes a note's playback time and velocity. The
// perturbed time is for the dispatched note only; the scheduler's
// bookkeeping time is never randomized. Velocity stays within
// [VelocityFloor, 1.0].
func (m Model) ApplyRandomization(nominalTime, stepDuration, nominalVelocity float64, rs RandomSettings, rng *rand.Rand) (playTime, velocity float64) {
	playTime = nominalTime
	velocity = nominalVelocity

	if rs.TimingEnabled && rs.TimingAmount > 0 {
		// Symmetric around zero: rng in [-1, 1).
		jitter := (rng.Float64()*2 - 1) * stepDuration * m.JitterMax * (rs.TimingAmount / 100.0)
		playTime += jitter
	}
	if rs.VelocityEnabled && rs.VelocityAmount > 0 {
		velocity += (rng.Float64()*2 - 1) * (rs.VelocityAmount / 100.0)
		if velocity < m.VelocityFloor {
			velocity = m.VelocityFloor
		}
		if velocity > 1.0 {
			velocity = 1.0
		}
	}
	return playTime, velocity
}
