// Package pattern stores the sequencer grid: tracks, steps, mute/solo and
// per-track humanization settings. It implements the engine's
// PatternProvider contract; all timing decisions stay in the engine.
package pattern

import (
	"fmt"
	"sync"

	"stepgrid/engine"
	"stepgrid/timing"
)

// MaxSteps is the longest supported track length.
const MaxSteps = 64

// Step is one grid cell.
type Step struct {
	Active   bool    `json:"active"`
	Velocity float64 `json:"velocity"` // 0.0 - 1.0
}

// Track is one row of the grid, mapped to a single sound.
type Track struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Note    uint8  `json:"note"`    // MIDI note the sound lives on
	Channel uint8  `json:"channel"` // MIDI channel (0-15)
	Muted   bool   `json:"muted"`
	Solo    bool   `json:"solo"`

	// Length lets each track loop at its own step count for polymeters.
	Length int             `json:"length"`
	Steps  [MaxSteps]Step  `json:"steps"`
	Random timing.RandomSettings `json:"random"`
}

// gmNotes maps the default tracks onto General MIDI percussion.
var gmNotes = []struct {
	name string
	note uint8
}{
	{"Kick", 36},
	{"Snare", 38},
	{"ClHat", 42},
	{"OpHat", 46},
	{"LoTom", 41},
	{"HiTom", 45},
	{"Clap", 39},
	{"Ride", 51},
}

// Pattern is a thread-safe set of tracks. The scheduler reads it from the
// tick handler while the UI mutates it, so access is guarded.
type Pattern struct {
	mu     sync.RWMutex
	tracks []*Track
}

// New builds a pattern from the given tracks.
func New(tracks ...*Track) *Pattern {
	return &Pattern{tracks: tracks}
}

// NewDefault returns an 8-track GM drum kit with 16-step tracks, all steps
// inactive at velocity 0.8.
func NewDefault() *Pattern {
	tracks := make([]*Track, 0, len(gmNotes))
	for i, g := range gmNotes {
		t := &Track{
			ID:      fmt.Sprintf("track-%d", i+1),
			Name:    g.name,
			Note:    g.note,
			Channel: 9, // GM percussion channel
			Length:  16,
		}
		for s := range t.Steps {
			t.Steps[s] = Step{Velocity: 0.8}
		}
		tracks = append(tracks, t)
	}
	return New(tracks...)
}

// ActiveStepsAt resolves the tracks that sound at a step index. Each track
// wraps at its own Length. The Muted flag folds in the solo rule: when any
// track is solo, non-solo tracks are reported muted so the dispatcher never
// issues sink calls for them.
func (p *Pattern) ActiveStepsAt(stepIndex int) []engine.TrackStep {
	if stepIndex < 0 {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	anySolo := false
	for _, t := range p.tracks {
		if t.Solo {
			anySolo = true
			break
		}
	}

	var out []engine.TrackStep
	for _, t := range p.tracks {
		if t.Length <= 0 {
			continue
		}
		st := t.Steps[stepIndex%t.Length]
		if !st.Active {
			continue
		}
		out = append(out, engine.TrackStep{
			TrackID: t.ID,
			Sample: engine.SampleRef{
				Name:    t.Name,
				Note:    t.Note,
				Channel: t.Channel,
			},
			Velocity: st.Velocity,
			Muted:    t.Muted || (anySolo && !t.Solo),
			Random:   t.Random,
		})
	}
	return out
}

// NumTracks returns the track count.
func (p *Pattern) NumTracks() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tracks)
}

// TrackInfo is a read-only copy of one track for display.
func (p *Pattern) TrackInfo(idx int) (Track, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if idx < 0 || idx >= len(p.tracks) {
		return Track{}, false
	}
	return *p.tracks[idx], true
}

// ToggleStep flips a step's Active flag and reports the new value.
func (p *Pattern) ToggleStep(trackIdx, stepIdx int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trackAt(trackIdx)
	if !ok || stepIdx < 0 || stepIdx >= t.Length {
		return false
	}
	t.Steps[stepIdx].Active = !t.Steps[stepIdx].Active
	return t.Steps[stepIdx].Active
}

// SetVelocity sets a step's velocity, rejecting values outside [0, 1].
func (p *Pattern) SetVelocity(trackIdx, stepIdx int, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("pattern: velocity %g out of range [0, 1]", v)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trackAt(trackIdx)
	if !ok || stepIdx < 0 || stepIdx >= t.Length {
		return fmt.Errorf("pattern: no step %d on track %d", stepIdx, trackIdx)
	}
	t.Steps[stepIdx].Velocity = v
	return nil
}

// ToggleMute flips a track's mute flag and reports the new value.
func (p *Pattern) ToggleMute(trackIdx int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trackAt(trackIdx)
	if !ok {
		return false
	}
	t.Muted = !t.Muted
	return t.Muted
}

// ToggleSolo flips a track's solo flag and reports the new value.
func (p *Pattern) ToggleSolo(trackIdx int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trackAt(trackIdx)
	if !ok {
		return false
	}
	t.Solo = !t.Solo
	return t.Solo
}

// SetLength changes a track's loop length, bounded to [1, MaxSteps].
func (p *Pattern) SetLength(trackIdx, length int) error {
	if length < 1 || length > MaxSteps {
		return fmt.Errorf("pattern: length %d out of range [1, %d]", length, MaxSteps)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trackAt(trackIdx)
	if !ok {
		return fmt.Errorf("pattern: no track %d", trackIdx)
	}
	t.Length = length
	return nil
}

// SetRandom replaces a track's humanization settings.
func (p *Pattern) SetRandom(trackIdx int, rs timing.RandomSettings) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trackAt(trackIdx)
	if !ok {
		return fmt.Errorf("pattern: no track %d", trackIdx)
	}
	t.Random = rs
	return nil
}

func (p *Pattern) trackAt(idx int) (*Track, bool) {
	if idx < 0 || idx >= len(p.tracks) {
		return nil, false
	}
	return p.tracks[idx], true
}
