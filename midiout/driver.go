//go:build cgo

package midiout

import (
	// Register the rtmidi driver so GetOutPorts/SendTo see real devices.
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)
