package pattern

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stepgrid/timing"
)

func twoTrackPattern() *Pattern {
	kick := &Track{ID: "kick", Name: "Kick", Note: 36, Channel: 9, Length: 16}
	hat := &Track{ID: "hat", Name: "ClHat", Note: 42, Channel: 9, Length: 16}
	for s := range kick.Steps {
		kick.Steps[s].Velocity = 0.8
		hat.Steps[s].Velocity = 0.8
	}
	kick.Steps[0].Active = true
	kick.Steps[8].Active = true
	hat.Steps[2].Active = true
	return New(kick, hat)
}

func TestActiveStepsAt(t *testing.T) {
	p := twoTrackPattern()

	tests := []struct {
		step int
		want []string
	}{
		{step: 0, want: []string{"kick"}},
		{step: 2, want: []string{"hat"}},
		{step: 5, want: nil},
		{step: 8, want: []string{"kick"}},
		{step: -1, want: nil},
	}
	for _, tt := range tests {
		got := p.ActiveStepsAt(tt.step)
		if len(got) != len(tt.want) {
			t.Fatalf("step %d: %d tracks, want %d", tt.step, len(got), len(tt.want))
		}
		for i, ts := range got {
			if ts.TrackID != tt.want[i] {
				t.Errorf("step %d: track %q, want %q", tt.step, ts.TrackID, tt.want[i])
			}
		}
	}

	// The sample reference carries the track's sound.
	got := p.ActiveStepsAt(0)
	if got[0].Sample.Note != 36 || got[0].Sample.Channel != 9 || got[0].Velocity != 0.8 {
		t.Fatalf("sample ref = %+v", got[0])
	}
}

func TestSoloWinsOverMute(t *testing.T) {
	p := twoTrackPattern()

	// Soloing the hat reports the kick muted, even though its own mute
	// flag is clear.
	if !p.ToggleSolo(1) {
		t.Fatal("ToggleSolo did not set")
	}
	for _, ts := range p.ActiveStepsAt(0) {
		if ts.TrackID == "kick" && !ts.Muted {
			t.Fatal("non-solo track not silenced while another is solo")
		}
	}
	for _, ts := range p.ActiveStepsAt(2) {
		if ts.TrackID == "hat" && ts.Muted {
			t.Fatal("solo track reported muted")
		}
	}

	// A muted solo track stays silent: solo overrides other tracks' fate,
	// not its own mute flag.
	p.ToggleMute(1)
	for _, ts := range p.ActiveStepsAt(2) {
		if ts.TrackID == "hat" && !ts.Muted {
			t.Fatal("muted solo track not reported muted")
		}
	}

	// Clearing solo restores the kick.
	p.ToggleSolo(1)
	for _, ts := range p.ActiveStepsAt(0) {
		if ts.TrackID == "kick" && ts.Muted {
			t.Fatal("kick still muted after solo cleared")
		}
	}
}

func TestPolymeterWrapsPerTrack(t *testing.T) {
	// A 3-step loop against a 16-step loop: the short track recurs every 3
	// global steps regardless of the long track's cycle.
	short := &Track{ID: "short", Note: 36, Length: 3}
	long := &Track{ID: "long", Note: 38, Length: 16}
	short.Steps[0] = Step{Active: true, Velocity: 0.8}
	long.Steps[0] = Step{Active: true, Velocity: 0.8}
	p := New(short, long)

	for step := 0; step < 48; step++ {
		var gotShort, gotLong bool
		for _, ts := range p.ActiveStepsAt(step) {
			switch ts.TrackID {
			case "short":
				gotShort = true
			case "long":
				gotLong = true
			}
		}
		if wantShort := step%3 == 0; gotShort != wantShort {
			t.Fatalf("step %d: short track sounding=%v, want %v", step, gotShort, wantShort)
		}
		if wantLong := step%16 == 0; gotLong != wantLong {
			t.Fatalf("step %d: long track sounding=%v, want %v", step, gotLong, wantLong)
		}
	}
}

func TestMutators(t *testing.T) {
	p := NewDefault()

	if !p.ToggleStep(0, 3) {
		t.Fatal("ToggleStep did not activate")
	}
	if p.ToggleStep(0, 3) {
		t.Fatal("second ToggleStep did not deactivate")
	}
	if p.ToggleStep(0, 16) {
		t.Fatal("ToggleStep past track length succeeded")
	}
	if p.ToggleStep(99, 0) {
		t.Fatal("ToggleStep on missing track succeeded")
	}

	if err := p.SetVelocity(0, 3, 0.5); err != nil {
		t.Fatalf("SetVelocity: %v", err)
	}
	if err := p.SetVelocity(0, 3, 1.5); err == nil {
		t.Fatal("out-of-range velocity accepted")
	}
	if err := p.SetVelocity(0, 40, 0.5); err == nil {
		t.Fatal("velocity past track length accepted")
	}

	if err := p.SetLength(0, 12); err != nil {
		t.Fatalf("SetLength: %v", err)
	}
	if err := p.SetLength(0, 0); err == nil {
		t.Fatal("zero length accepted")
	}
	if err := p.SetLength(0, MaxSteps+1); err == nil {
		t.Fatal("oversized length accepted")
	}

	rs := timing.RandomSettings{TimingEnabled: true, TimingAmount: 40}
	if err := p.SetRandom(0, rs); err != nil {
		t.Fatalf("SetRandom: %v", err)
	}
	info, ok := p.TrackInfo(0)
	if !ok {
		t.Fatal("TrackInfo missing")
	}
	if info.Random != rs || info.Length != 12 {
		t.Fatalf("track = %+v", info)
	}
	if _, ok := p.TrackInfo(99); ok {
		t.Fatal("TrackInfo for missing track succeeded")
	}
}

func TestNewDefaultKit(t *testing.T) {
	p := NewDefault()
	if p.NumTracks() != 8 {
		t.Fatalf("default kit has %d tracks, want 8", p.NumTracks())
	}
	kick, _ := p.TrackInfo(0)
	if kick.Name != "Kick" || kick.Note != 36 || kick.Channel != 9 || kick.Length != 16 {
		t.Fatalf("kick track = %+v", kick)
	}
	// A fresh pattern is silent everywhere.
	for step := 0; step < 16; step++ {
		if got := p.ActiveStepsAt(step); len(got) != 0 {
			t.Fatalf("step %d active in fresh pattern", step)
		}
	}
}

func TestProjectRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "groove.json")

	p := twoTrackPattern()
	cfg := timing.Config{BPM: 140, Swing: 25, Resolution: 16}
	if err := SaveProject(path, "groove", cfg, p); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}

	proj, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject: %v", err)
	}
	if proj.Name != "groove" || proj.Config != cfg {
		t.Fatalf("project header = %q %+v", proj.Name, proj.Config)
	}
	if len(proj.Tracks) != 2 {
		t.Fatalf("loaded %d tracks, want 2", len(proj.Tracks))
	}

	// The rebuilt pattern sounds the same steps.
	rebuilt := proj.Build()
	for step := 0; step < 16; step++ {
		if got, want := len(rebuilt.ActiveStepsAt(step)), len(p.ActiveStepsAt(step)); got != want {
			t.Fatalf("step %d: %d tracks after round trip, want %d", step, got, want)
		}
	}
}

func TestLoadProjectRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	write := func(t *testing.T, name, body string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		return path
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "not json",
			body: "bpm: 120",
			want: "parse",
		},
		{
			name: "no tracks",
			body: `{"name":"x","config":{"bpm":120,"swing":0,"resolution":16},"tracks":[]}`,
			want: "no tracks",
		},
		{
			name: "bad bpm",
			body: `{"name":"x","config":{"bpm":300,"swing":0,"resolution":16},"tracks":[{"id":"a","length":16}]}`,
			want: "bpm",
		},
		{
			name: "duplicate ids",
			body: `{"name":"x","config":{"bpm":120,"swing":0,"resolution":16},"tracks":[{"id":"a","length":16},{"id":"a","length":16}]}`,
			want: "duplicate",
		},
		{
			name: "bad channel",
			body: `{"name":"x","config":{"bpm":120,"swing":0,"resolution":16},"tracks":[{"id":"a","channel":16,"length":16}]}`,
			want: "channel",
		},
		{
			name: "bad length",
			body: `{"name":"x","config":{"bpm":120,"swing":0,"resolution":16},"tracks":[{"id":"a","length":65}]}`,
			want: "length",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			path := write(t, strings.ReplaceAll(tt.name, " ", "-")+".json", tt.body)
			_, err := LoadProject(path)
			if err == nil {
				t.Fatal("bad project accepted")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	if _, err := LoadProject(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("missing file accepted")
	}
}
