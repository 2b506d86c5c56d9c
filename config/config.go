// Package config loads the application's YAML configuration and watches it
// for live edits, so tempo and swing changes land while the sequencer runs.
package config

import (
	"bytes"
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v3"

	"stepgrid/timing"
)

// MIDI selects the output port.
type MIDI struct {
	Port string `yaml:"port"`
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level"`
}

// Config is the application configuration. It is a plain comparable value
// so the watcher can skip publishing unchanged reloads.
type Config struct {
	Grid timing.Config `yaml:"grid"`
	// TickMS is the ticker period in milliseconds. The lookahead window
	// is derived from it by the engine.
	TickMS int `yaml:"tickMs"`
	// PinnedTicker locks the tick goroutine to an OS thread.
	PinnedTicker bool `yaml:"pinnedTicker"`
	// Project is an optional project file to load on startup.
	Project string `yaml:"project"`
	MIDI    MIDI   `yaml:"midi"`
	Log     Log    `yaml:"log"`
}

// Default returns the stock configuration: 120 BPM, 16 steps, 25ms ticks.
func Default() Config {
	return Config{
		Grid:   timing.Default(),
		TickMS: 25,
		Log:    Log{Level: "info"},
	}
}

// Validate checks grid ranges and the tick period.
func (c Config) Validate() error {
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	if c.TickMS < 5 || c.TickMS > 200 {
		return fmt.Errorf("config: tickMs %d out of range [5, 200]", c.TickMS)
	}
	return nil
}

// Load parses a YAML config file strictly: unknown keys are errors, so a
// typo never silently falls back to a default. A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, err
	}
	return parse(path, data)
}

func parse(path string, data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}
