package timing

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestStepDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		bpm  float64
		res  int
		want float64
	}{
		{name: "120bpm 16 steps", bpm: 120, res: 16, want: 0.125},
		{name: "120bpm 8 steps", bpm: 120, res: 8, want: 0.25},
		{name: "120bpm 32 steps", bpm: 120, res: 32, want: 0.0625},
		{name: "60bpm 16 steps", bpm: 60, res: 16, want: 0.25},
		{name: "200bpm 16 steps", bpm: 200, res: 16, want: 0.075},
		{name: "90bpm 64 steps", bpm: 90, res: 64, want: (60.0 / 90.0) / 16.0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := StepDuration(tt.bpm, tt.res)
			if got != tt.want {
				t.Fatalf("StepDuration(%g, %d) = %g, want %g", tt.bpm, tt.res, got, tt.want)
			}
		})
	}
}

func TestStepDurationScaling(t *testing.T) {
	t.Parallel()
	// Doubling bpm halves the duration; doubling resolution halves it too.
	for _, bpm := range []float64{60, 75, 100} {
		if got := StepDuration(2*bpm, 16); !almostEqual(got, StepDuration(bpm, 16)/2, 1e-12) {
			t.Errorf("doubling bpm %g: got %g", bpm, got)
		}
	}
	for _, res := range []int{8, 16, 32} {
		if got := StepDuration(120, 2*res); !almostEqual(got, StepDuration(120, res)/2, 1e-12) {
			t.Errorf("doubling resolution %d: got %g", res, got)
		}
	}
}

func TestSwingOffset(t *testing.T) {
	t.Parallel()
	m := NewModel()
	const dur = 0.125

	// Even steps never shift.
	for _, step := range []int{0, 2, 4, 100} {
		if off := m.SwingOffset(step, dur, 100); off != 0 {
			t.Errorf("even step %d shifted by %g", step, off)
		}
	}

	// 100% swing delays an odd step by exactly 30% of the duration.
	if off := m.SwingOffset(1, dur, 100); !almostEqual(off, 0.0375, 1e-12) {
		t.Errorf("full swing offset = %g, want 0.0375", off)
	}

	// Offsets stay within [0, SwingMax*dur] across the whole swing range.
	for swing := 0.0; swing <= 100; swing += 12.5 {
		off := m.SwingOffset(3, dur, swing)
		if off < 0 || off > m.SwingMax*dur {
			t.Errorf("swing %g: offset %g outside [0, %g]", swing, off, m.SwingMax*dur)
		}
	}

	// Even a misconfigured cap never pushes a step past its successor.
	wild := Model{SwingMax: 2.0}
	if off := wild.SwingOffset(1, dur, 100); off >= dur {
		t.Errorf("offset %g reached the next step's time", off)
	}
}

func TestApplyRandomizationTiming(t *testing.T) {
	t.Parallel()
	m := NewModel()
	rng := rand.New(rand.NewSource(1))
	const (
		nominal = 10.0
		dur     = 0.125
	)

	rs := RandomSettings{TimingEnabled: true, TimingAmount: 100}
	sawEarly, sawLate := false, false
	for i := 0; i < 500; i++ {
		pt, _ := m.ApplyRandomization(nominal, dur, 0.8, rs, rng)
		jitter := pt - nominal
		if math.Abs(jitter) > m.JitterMax*dur {
			t.Fatalf("jitter %g exceeds %g", jitter, m.JitterMax*dur)
		}
		if jitter < 0 {
			sawEarly = true
		}
		if jitter > 0 {
			sawLate = true
		}
	}
	if !sawEarly || !sawLate {
		t.Error("timing jitter is not symmetric around zero")
	}

	// Disabled randomization leaves the time untouched.
	pt, _ := m.ApplyRandomization(nominal, dur, 0.8, RandomSettings{}, rng)
	if pt != nominal {
		t.Errorf("disabled jitter moved time to %g", pt)
	}
}

func TestApplyRandomizationVelocity(t *testing.T) {
	t.Parallel()
	m := NewModel()
	rng := rand.New(rand.NewSource(2))

	rs := RandomSettings{VelocityEnabled: true, VelocityAmount: 100}
	for i := 0; i < 500; i++ {
		_, vel := m.ApplyRandomization(0, 0.125, 0.5, rs, rng)
		if vel < m.VelocityFloor || vel > 1.0 {
			t.Fatalf("velocity %g outside [%g, 1]", vel, m.VelocityFloor)
		}
	}

	// A low nominal velocity is floored, never driven to zero.
	for i := 0; i < 200; i++ {
		_, vel := m.ApplyRandomization(0, 0.125, 0.15, rs, rng)
		if vel < m.VelocityFloor {
			t.Fatalf("velocity %g under floor", vel)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: Default(), wantErr: false},
		{name: "min bpm", cfg: Config{BPM: 60, Swing: 0, Resolution: 8}, wantErr: false},
		{name: "max bpm", cfg: Config{BPM: 200, Swing: 100, Resolution: 64}, wantErr: false},
		{name: "bpm too low", cfg: Config{BPM: 59.9, Resolution: 16}, wantErr: true},
		{name: "bpm too high", cfg: Config{BPM: 201, Resolution: 16}, wantErr: true},
		{name: "negative swing", cfg: Config{BPM: 120, Swing: -1, Resolution: 16}, wantErr: true},
		{name: "swing too high", cfg: Config{BPM: 120, Swing: 100.5, Resolution: 16}, wantErr: true},
		{name: "odd resolution", cfg: Config{BPM: 120, Resolution: 12}, wantErr: true},
		{name: "zero resolution", cfg: Config{BPM: 120, Resolution: 0}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var ce *ConfigError
				if !errors.As(err, &ce) {
					t.Fatalf("error %T is not *ConfigError", err)
				}
			}
		})
	}
}
