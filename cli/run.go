package cli

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stepgrid/clock"
	"stepgrid/config"
	"stepgrid/engine"
	"stepgrid/midiout"
	"stepgrid/pattern"
	"stepgrid/timing"
	"stepgrid/tui"
)

func newRunCmd() *cobra.Command {
	var flagPort string
	var flagProject string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sequencer TUI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			if flagPort != "" {
				cfg.MIDI.Port = flagPort
			}
			if flagProject != "" {
				cfg.Project = flagProject
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&flagPort, "port", "", "MIDI out port (overrides config)")
	cmd.Flags().StringVar(&flagProject, "project", "", "Project file to load (overrides config)")
	return cmd
}

func run(cfg config.Config) error {
	log := logger

	grid := cfg.Grid
	pat := pattern.NewDefault()
	if cfg.Project != "" {
		proj, err := pattern.LoadProject(cfg.Project)
		if err != nil {
			return err
		}
		pat = proj.Build()
		grid = proj.Config
		log.Info().Str("project", proj.Name).Msg("project loaded")
	}

	clk := clock.NewMonotonic()
	period := time.Duration(cfg.TickMS) * time.Millisecond
	var ticker clock.Ticker
	if cfg.PinnedTicker {
		ticker = clock.NewPinned(period)
	} else {
		ticker = clock.NewPeriodic(period)
	}

	perf := engine.NewPerformanceTracker(0)
	perf.SetAlert(func(a engine.Anomaly) {
		log.Warn().
			Str("kind", a.Kind.String()).
			Float64("value", a.Value).
			Int64("step", a.StepCount).
			Msg("timing anomaly")
	})

	sink := midiout.New(clk, cfg.MIDI.Port,
		midiout.WithLogger(log.With().Str("comp", "midiout").Logger()),
		midiout.WithOnPlayed(func(requested, actual float64) {
			perf.RecordDispatch(requested-actual, 0)
		}),
	)
	if err := sink.Start(); err != nil {
		return err
	}
	defer sink.Close()

	sched, err := engine.New(clk, ticker, pat, sink, engine.Options{
		Config: grid,
		Rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		Logger: log.With().Str("comp", "engine").Logger(),
		Perf:   perf,
	})
	if err != nil {
		return err
	}
	defer sched.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Live config: edits to the YAML while running flow through the
	// scheduler's setters, same path as the TUI's tempo keys.
	watcher := config.NewWatcher(flagConfig, cfg, log.With().Str("comp", "config").Logger())
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("config watcher exited")
		}
	}()
	go func() {
		for updated := range watcher.Subscribe() {
			applyGrid(sched, updated.Grid, log)
		}
	}()

	m := tui.NewModel(sched, pat, log.With().Str("comp", "tui").Logger())
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// applyGrid pushes reloaded grid settings through the scheduler's setters.
// Each knob is applied independently so one rejected value does not block
// the others.
func applyGrid(sched *engine.Scheduler, grid timing.Config, log zerolog.Logger) {
	if err := sched.SetBPM(grid.BPM); err != nil {
		log.Warn().Err(err).Msg("reloaded bpm rejected")
	}
	if err := sched.SetSwing(grid.Swing); err != nil {
		log.Warn().Err(err).Msg("reloaded swing rejected")
	}
	if err := sched.SetStepResolution(grid.Resolution); err != nil {
		log.Warn().Err(err).Msg("reloaded resolution rejected")
	}
}
