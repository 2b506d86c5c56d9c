package engine

import (
	"sync"

	"github.com/rs/zerolog"
)

// StepFunc observes scheduled step boundaries (for UI highlighting and the
// like). It runs inside the tick handler and must return quickly and never
// call back into the scheduler.
type StepFunc func(ev StepEvent)

// StateFunc observes scheduler state transitions.
type StateFunc func(snap Snapshot)

// stepRegistry fans a step event out to registered observers in
// registration order. A panicking observer is logged and skipped; it never
// prevents delivery to the others or aborts the lookahead loop.
type stepRegistry struct {
	mu     sync.Mutex
	nextID int
	subs   []stepSub
}

type stepSub struct {
	id int
	fn StepFunc
}

func (r *stepRegistry) add(fn StepFunc) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs = append(r.subs, stepSub{id: id, fn: fn})
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		for i, s := range r.subs {
			if s.id == id {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
	}
}

func (r *stepRegistry) notify(log zerolog.Logger, ev StepEvent) {
	r.mu.Lock()
	subs := make([]stepSub, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()
	for _, s := range subs {
		invokeIsolated(log, "step", func() { s.fn(ev) })
	}
}

type stateRegistry struct {
	mu     sync.Mutex
	nextID int
	subs   []stateSub
}

type stateSub struct {
	id int
	fn StateFunc
}

func (r *stateRegistry) add(fn StateFunc) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs = append(r.subs, stateSub{id: id, fn: fn})
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		for i, s := range r.subs {
			if s.id == id {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
	}
}

func (r *stateRegistry) notify(log zerolog.Logger, snap Snapshot) {
	r.mu.Lock()
	subs := make([]stateSub, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()
	for _, s := range subs {
		invokeIsolated(log, "state", func() { s.fn(snap) })
	}
}

// invokeIsolated runs fn, converting a panic into a log line so one broken
// observer cannot take down dispatch to the rest.
func invokeIsolated(log zerolog.Logger, kind string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("observer", kind).Interface("panic", rec).Msg("observer panicked")
		}
	}()
	fn()
}
