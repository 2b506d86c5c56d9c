package clock

import (
	"errors"
	"runtime"
	"sync"
	"time"
)

// ErrTickerRunning is returned by Start when the ticker is already running.
var ErrTickerRunning = errors.New("clock: ticker already running")

// Ticker delivers periodic wakeups to a single callback. Delivery timing is
// best-effort; consumers must tolerate jitter and late ticks. Implementations
// never invoke the callback concurrently with itself: callbacks are
// serialized on one goroutine.
//
// A Ticker is restartable: Start after Stop begins a fresh run.
type Ticker interface {
	Start(fn func()) error
	Stop()
	Period() time.Duration
}

// Periodic is a Ticker backed by time.Ticker on an ordinary goroutine.
type Periodic struct {
	period time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup

	// lockThread pins the tick goroutine to an OS thread. This trades a
	// thread for steadier wakeups when the scheduler shares the process
	// with a busy UI.
	lockThread bool
}

// NewPeriodic returns a Ticker firing every period.
func NewPeriodic(period time.Duration) *Periodic {
	return &Periodic{period: period}
}

// NewPinned returns a Ticker whose tick goroutine is locked to an OS
// thread for steadier delivery under load.
func NewPinned(period time.Duration) *Periodic {
	return &Periodic{period: period, lockThread: true}
}

func (t *Periodic) Period() time.Duration { return t.period }

// Start begins delivering ticks to fn. It returns ErrTickerRunning if the
// ticker is already started.
func (t *Periodic) Start(fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopCh != nil {
		return ErrTickerRunning
	}
	stop := make(chan struct{})
	t.stopCh = stop
	t.wg.Add(1)

	go func() {
		defer t.wg.Done()
		if t.lockThread {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
		}
		tk := time.NewTicker(t.period)
		defer tk.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tk.C:
				fn()
			}
		}
	}()
	return nil
}

// Stop halts tick delivery and waits for any in-flight callback to return.
// Stop is idempotent.
func (t *Periodic) Stop() {
	t.mu.Lock()
	if t.stopCh == nil {
		t.mu.Unlock()
		return
	}
	close(t.stopCh)
	t.stopCh = nil
	t.mu.Unlock()
	t.wg.Wait()
}
