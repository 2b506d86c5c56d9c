package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"stepgrid/midiout"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List available MIDI out ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports := midiout.ListPorts()
			if len(ports) == 0 {
				fmt.Println("no MIDI out ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Println(p)
			}
			return nil
		},
	}
}
