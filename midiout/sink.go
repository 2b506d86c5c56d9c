// Package midiout is the engine's note sink over MIDI. Events arrive ahead
// of their play time (inside the scheduler's lookahead window), sit in a
// time-ordered queue, and are sent on the wire when their moment comes.
package midiout

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gomidi "gitlab.com/gomidi/midi/v2"

	"stepgrid/clock"
	"stepgrid/engine"
)

// ErrNotStarted is returned by Schedule before Start or after Close.
var ErrNotStarted = errors.New("midiout: sink not started")

type event struct {
	at       float64
	note     uint8
	channel  uint8
	velocity uint8
	trackID  string
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the sink's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Sink) { s.log = log }
}

// WithOnPlayed installs an observer called after each event is sent, with
// the requested and actual send times. Feed it to the performance tracker
// to measure output latency.
func WithOnPlayed(fn func(requested, actual float64)) Option {
	return func(s *Sink) { s.onPlayed = fn }
}

// WithSender bypasses port resolution and routes every message through fn.
// Used for tests and virtual destinations.
func WithSender(fn func(gomidi.Message) error) Option {
	return func(s *Sink) { s.sendFn = fn }
}

// Sink schedules note events onto a MIDI out port. It implements
// engine.NoteSink and engine.SinkFlusher.
//
// Output runs on a dedicated goroutine locked to its OS thread, so UI load
// cannot delay the sends. Ports are opened lazily and cached by name.
type Sink struct {
	clk      clock.Clock
	log      zerolog.Logger
	portName string
	onPlayed func(requested, actual float64)
	sendFn   func(gomidi.Message) error

	sendersMu sync.Mutex
	senders   map[string]func(gomidi.Message) error

	mu        sync.Mutex
	queue     []event // sorted by at, ascending
	interrupt chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
	started   bool
}

// New returns a Sink targeting the named out port. The port is resolved on
// first send, so a sink can be created before the device is plugged in.
func New(clk clock.Clock, portName string, opts ...Option) *Sink {
	s := &Sink{
		clk:      clk,
		portName: portName,
		senders:  make(map[string]func(gomidi.Message) error),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListPorts returns the names of the available MIDI out ports.
func ListPorts() []string {
	var names []string
	for _, p := range gomidi.GetOutPorts() {
		names = append(names, p.String())
	}
	return names
}

// Start launches the output goroutine. It is an error to start twice.
func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("midiout: already started")
	}
	s.interrupt = make(chan struct{}, 1)
	s.stopCh = make(chan struct{})
	s.started = true
	s.wg.Add(1)
	go s.loop(s.stopCh, s.interrupt)
	return nil
}

// Schedule queues a note for its play time. Velocity is mapped from the
// engine's [0, 1] range onto MIDI 1-127. Times slightly in the past are
// sent immediately rather than dropped.
func (s *Sink) Schedule(playTime float64, sample engine.SampleRef, velocity float64, trackID string) error {
	if velocity < 0 || velocity > 1 {
		return fmt.Errorf("midiout: velocity %g out of range [0, 1]", velocity)
	}
	vel := uint8(velocity * 127)
	if vel == 0 {
		vel = 1
	}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	ev := event{at: playTime, note: sample.Note, channel: sample.Channel, velocity: vel, trackID: trackID}
	idx := sort.Search(len(s.queue), func(i int) bool { return s.queue[i].at > playTime })
	s.queue = append(s.queue, event{})
	copy(s.queue[idx+1:], s.queue[idx:])
	s.queue[idx] = ev
	s.mu.Unlock()

	s.wake()
	return nil
}

// Flush drops every queued, not-yet-sent event. Used on stop so nothing
// sounds after the transport halts.
func (s *Sink) Flush() {
	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()
	s.wake()
}

// Close stops the output goroutine and drops the queue. The sink rejects
// further Schedule calls.
func (s *Sink) Close() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.queue = nil
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Sink) wake() {
	s.mu.Lock()
	ch := s.interrupt
	s.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// loop waits out each queued event and puts it on the wire. An interrupt
// re-evaluates the head of the queue, so a newly scheduled earlier event or
// a flush takes effect immediately.
func (s *Sink) loop(stopCh, interrupt chan struct{}) {
	defer s.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		s.mu.Lock()
		var next *event
		if len(s.queue) > 0 {
			next = &s.queue[0]
		}
		s.mu.Unlock()

		if next == nil {
			select {
			case <-stopCh:
				return
			case <-interrupt:
			}
			continue
		}

		wait := time.Duration((next.at - s.clk.Now()) * float64(time.Second))
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-stopCh:
				timer.Stop()
				return
			case <-interrupt:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		s.mu.Lock()
		if len(s.queue) == 0 {
			// flushed while we slept
			s.mu.Unlock()
			continue
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.send(ev)
	}
}

func (s *Sink) send(ev event) {
	sender, err := s.sender(s.portName)
	if err != nil {
		s.log.Warn().Err(err).Str("track", ev.trackID).Msg("midi send failed")
		return
	}
	if err := sender(gomidi.NoteOn(ev.channel, ev.note, ev.velocity)); err != nil {
		s.log.Warn().Err(err).Str("track", ev.trackID).Msg("note on failed")
		return
	}
	// Percussion has no sustain to manage; close the note right away.
	if err := sender(gomidi.NoteOff(ev.channel, ev.note)); err != nil {
		s.log.Warn().Err(err).Str("track", ev.trackID).Msg("note off failed")
	}
	if s.onPlayed != nil {
		s.onPlayed(ev.at, s.clk.Now())
	}
}

// sender returns the cached send func for a port, opening it on first use.
func (s *Sink) sender(portName string) (func(gomidi.Message) error, error) {
	if s.sendFn != nil {
		return s.sendFn, nil
	}
	if portName == "" {
		return nil, errors.New("midiout: no port configured")
	}
	s.sendersMu.Lock()
	defer s.sendersMu.Unlock()
	if fn, ok := s.senders[portName]; ok {
		return fn, nil
	}
	for _, port := range gomidi.GetOutPorts() {
		if port.String() == portName {
			fn, err := gomidi.SendTo(port)
			if err != nil {
				return nil, fmt.Errorf("midiout: open %q: %w", portName, err)
			}
			s.senders[portName] = fn
			return fn, nil
		}
	}
	return nil, fmt.Errorf("midiout: port %q not found", portName)
}
