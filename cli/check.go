package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"stepgrid/pattern"
	"stepgrid/timing"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <project.json>",
		Short: "Validate a project file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, err := pattern.LoadProject(args[0])
			if err != nil {
				return err
			}
			dur := timing.StepDuration(proj.Config.BPM, proj.Config.Resolution)
			fmt.Printf("%s: %d tracks, %.0f bpm, %d steps (%.1f ms/step), swing %.0f%%\n",
				proj.Name, len(proj.Tracks), proj.Config.BPM, proj.Config.Resolution,
				dur*1000, proj.Config.Swing)
			return nil
		},
	}
}
