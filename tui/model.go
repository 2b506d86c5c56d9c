// Package tui is the terminal front-end: a step grid with transport
// controls, driven by the scheduler's observer callbacks. It only reads
// engine state and pushes configuration through the engine's setters; all
// timing lives on the engine side.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"stepgrid/engine"
	"stepgrid/pattern"
)

type stepMsg engine.StepEvent

type stateMsg engine.Snapshot

// Model is the bubbletea model for the sequencer screen.
type Model struct {
	sched *engine.Scheduler
	pat   *pattern.Pattern
	log   zerolog.Logger

	steps  chan engine.StepEvent
	states chan engine.Snapshot

	snap     engine.Snapshot
	playhead int

	cursorTrack int
	cursorStep  int

	lastErr  string
	quitting bool
}

// NewModel wires a model to the scheduler's observers. Events are pushed
// through buffered channels into the bubbletea loop; if the UI lags, stale
// step events are dropped rather than delaying the tick handler.
func NewModel(sched *engine.Scheduler, pat *pattern.Pattern, log zerolog.Logger) Model {
	m := Model{
		sched:  sched,
		pat:    pat,
		log:    log,
		steps:  make(chan engine.StepEvent, 8),
		states: make(chan engine.Snapshot, 4),
		snap:   sched.Snapshot(),
	}
	sched.OnStep(func(ev engine.StepEvent) {
		select {
		case m.steps <- ev:
		default:
		}
	})
	sched.OnStateChange(func(snap engine.Snapshot) {
		select {
		case m.states <- snap:
		default:
		}
	})
	return m
}

func listenSteps(ch chan engine.StepEvent) tea.Cmd {
	return func() tea.Msg { return stepMsg(<-ch) }
}

func listenStates(ch chan engine.Snapshot) tea.Cmd {
	return func() tea.Msg { return stateMsg(<-ch) }
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(listenSteps(m.steps), listenStates(m.states))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case stepMsg:
		m.playhead = msg.StepIndex
		return m, listenSteps(m.steps)

	case stateMsg:
		m.snap = engine.Snapshot(msg)
		return m, listenStates(m.states)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.lastErr = ""
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.sched.Stop()
		return m, tea.Quit

	case "enter":
		if m.snap.State == engine.StateStopped {
			m.report(m.sched.Start())
		} else {
			m.sched.Stop()
			m.playhead = 0
		}

	case "p":
		switch m.snap.State {
		case engine.StateRunning:
			m.report(m.sched.Pause())
		case engine.StatePaused:
			m.report(m.sched.Resume())
		}

	case "+", "=":
		m.report(m.sched.SetBPM(m.snap.Config.BPM + 5))
	case "-", "_":
		m.report(m.sched.SetBPM(m.snap.Config.BPM - 5))

	case "]":
		m.report(m.sched.SetSwing(m.snap.Config.Swing + 10))
	case "[":
		m.report(m.sched.SetSwing(m.snap.Config.Swing - 10))

	case "h", "left":
		if m.cursorStep > 0 {
			m.cursorStep--
		}
	case "l", "right":
		if t, ok := m.pat.TrackInfo(m.cursorTrack); ok && m.cursorStep < t.Length-1 {
			m.cursorStep++
		}
	case "k", "up":
		if m.cursorTrack > 0 {
			m.cursorTrack--
		}
	case "j", "down":
		if m.cursorTrack < m.pat.NumTracks()-1 {
			m.cursorTrack++
		}

	case " ", "x":
		m.pat.ToggleStep(m.cursorTrack, m.cursorStep)

	case "m":
		m.pat.ToggleMute(m.cursorTrack)
	case "s":
		m.pat.ToggleSolo(m.cursorTrack)
	}
	m.snap = m.sched.Snapshot()
	return m, nil
}

// report surfaces a transport or validation error in the status line.
func (m *Model) report(err error) {
	if err != nil {
		m.lastErr = err.Error()
		m.log.Debug().Err(err).Msg("rejected")
	}
}
