package tui

import (
	"fmt"
	"strings"

	"stepgrid/engine"
	"stepgrid/theme"
)

var th = theme.Default()

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	cfg := m.snap.Config
	b.WriteString(th.Header.Render("STEPGRID"))
	b.WriteString(fmt.Sprintf("  %s  %.0f bpm  swing %.0f%%  %d steps\n\n",
		strings.ToUpper(m.snap.State.String()), cfg.BPM, cfg.Swing, cfg.Resolution))

	for t := 0; t < m.pat.NumTracks(); t++ {
		track, ok := m.pat.TrackInfo(t)
		if !ok {
			continue
		}

		name := track.Name
		switch {
		case track.Solo:
			b.WriteString(th.Solo.Render(name + th.Glyphs.SoloMark))
		case track.Muted:
			b.WriteString(th.Muted.Render(name + th.Glyphs.MuteMark))
		default:
			b.WriteString(th.Label.Render(name))
		}
		b.WriteString(" ")

		for s := 0; s < track.Length; s++ {
			cell := th.Glyphs.StepEmpty
			if track.Steps[s].Active {
				cell = th.Glyphs.StepActive
			}

			onPlayhead := m.snap.State != engine.StateStopped && s == m.playhead%track.Length
			onCursor := t == m.cursorTrack && s == m.cursorStep

			switch {
			case onCursor:
				cell = th.Cursor.Render(cell)
			case onPlayhead:
				cell = th.Playhead.Render(cell)
			case track.Steps[s].Active:
				cell = th.Active.Render(cell)
			}

			b.WriteString(cell)
			if s%4 == 3 {
				b.WriteString("  ")
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString("\n")
	}

	diag := m.sched.Diagnostics()
	b.WriteString(fmt.Sprintf("\ndrift avg %.1fns max %.1fns   late avg %.2fms max %.2fms   events %d\n",
		diag.Drift*1e9, diag.MaxDrift*1e9, diag.Jitter*1e3, diag.MaxLatency*1e3, diag.Events))

	if m.lastErr != "" {
		b.WriteString(th.Err.Render(m.lastErr) + "\n")
	}

	b.WriteString(th.Help.Render("\nenter play/stop  p pause/resume  +/- tempo  [/] swing  hjkl move  space toggle  m mute  s solo  q quit\n"))
	return b.String()
}
