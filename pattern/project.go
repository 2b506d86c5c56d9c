package pattern

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"stepgrid/timing"
)

// Project is the on-disk form of a pattern plus its grid settings.
type Project struct {
	Name   string        `json:"name"`
	Config timing.Config `json:"config"`
	Tracks []Track       `json:"tracks"`
}

// ProjectsDir returns the directory projects are saved under.
func ProjectsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "stepgrid", "projects"), nil
}

// SaveProject writes the pattern and grid config to path as indented JSON.
func SaveProject(path, name string, cfg timing.Config, p *Pattern) error {
	p.mu.RLock()
	proj := Project{Name: name, Config: cfg, Tracks: make([]Track, 0, len(p.tracks))}
	for _, t := range p.tracks {
		proj.Tracks = append(proj.Tracks, *t)
	}
	p.mu.RUnlock()

	data, err := json.MarshalIndent(proj, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadProject reads and validates a project file. Runtime-only concerns
// (play state, step position) are never persisted, so a loaded project
// always starts stopped.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var proj Project
	if err := json.Unmarshal(data, &proj); err != nil {
		return nil, fmt.Errorf("pattern: parse %s: %w", path, err)
	}
	if err := proj.Validate(); err != nil {
		return nil, fmt.Errorf("pattern: %s: %w", path, err)
	}
	return &proj, nil
}

// Validate checks the grid config and every track's bounds.
func (p *Project) Validate() error {
	if err := p.Config.Validate(); err != nil {
		return err
	}
	if len(p.Tracks) == 0 {
		return fmt.Errorf("project has no tracks")
	}
	seen := make(map[string]bool, len(p.Tracks))
	for i, t := range p.Tracks {
		if t.ID == "" {
			return fmt.Errorf("track %d has no id", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate track id %q", t.ID)
		}
		seen[t.ID] = true
		if t.Length < 1 || t.Length > MaxSteps {
			return fmt.Errorf("track %q length %d out of range [1, %d]", t.ID, t.Length, MaxSteps)
		}
		if t.Channel > 15 {
			return fmt.Errorf("track %q channel %d out of range [0, 15]", t.ID, t.Channel)
		}
		for s := 0; s < t.Length; s++ {
			if v := t.Steps[s].Velocity; v < 0 || v > 1 {
				return fmt.Errorf("track %q step %d velocity %g out of range [0, 1]", t.ID, s, v)
			}
		}
	}
	return nil
}

// Build constructs a live Pattern from the validated project.
func (p *Project) Build() *Pattern {
	tracks := make([]*Track, 0, len(p.Tracks))
	for i := range p.Tracks {
		t := p.Tracks[i]
		tracks = append(tracks, &t)
	}
	return New(tracks...)
}
