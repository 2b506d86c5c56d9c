// Package theme holds the color roles and grid glyphs the TUI renders with,
// so every view draws from one place.
package theme

import "github.com/charmbracelet/lipgloss"

// Glyphs are the characters used to draw grid cells and track marks.
type Glyphs struct {
	StepEmpty  string // inactive step
	StepActive string // step with a hit
	MuteMark   string // suffix on a muted track's name
	SoloMark   string // suffix on a solo track's name
}

// Theme maps UI roles onto lipgloss styles.
type Theme struct {
	Header   lipgloss.Style
	Label    lipgloss.Style
	Muted    lipgloss.Style
	Solo     lipgloss.Style
	Active   lipgloss.Style
	Playhead lipgloss.Style
	Cursor   lipgloss.Style
	Err      lipgloss.Style
	Help     lipgloss.Style

	Glyphs Glyphs
}

// Default is the stock purple-on-dark look.
func Default() Theme {
	return Theme{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("135")),
		Label:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(7),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Width(7),
		Solo:     lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Width(7),
		Active:   lipgloss.NewStyle().Foreground(lipgloss.Color("99")),
		Playhead: lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true),
		Cursor:   lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("57")),
		Err:      lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		Help:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Glyphs: Glyphs{
			StepEmpty:  "·",
			StepActive: "■",
			MuteMark:   "×",
			SoloMark:   "!",
		},
	}
}
