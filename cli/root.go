// Package cli wires the sequencer together behind a cobra command tree.
package cli

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagLogLevel string

	logger zerolog.Logger
)

// NewRootCmd builds the stepgrid command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stepgrid",
		Short: "A drift-free MIDI step sequencer",
		Long:  "stepgrid schedules step-sequencer patterns against a monotonic clock and plays them over MIDI.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = newLogger(flagLogLevel)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "stepgrid.yaml", "Path to YAML config")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(),
		newPortsCmd(),
		newCheckCmd(),
	)
	return root
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	// The TUI owns stdout; logs go to stderr.
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	return zerolog.New(cw).Level(lvl).With().Timestamp().Logger()
}
