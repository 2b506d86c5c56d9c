package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher republishes the config whenever its file changes on disk.
// Editors produce bursts of write/rename events, so reloads are debounced
// and a parse that fails keeps the previous config in force.
type Watcher struct {
	path string
	log  zerolog.Logger

	mu      sync.Mutex
	current Config
	subs    []chan Config
}

// NewWatcher returns a watcher for path, seeded with the given config.
func NewWatcher(path string, initial Config, log zerolog.Logger) *Watcher {
	return &Watcher{path: path, log: log, current: initial}
}

// Current returns the last good config.
func (w *Watcher) Current() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Subscribe returns a channel receiving each accepted config change. The
// channel is buffered; a slow consumer drops intermediate updates rather
// than blocking the watcher.
func (w *Watcher) Subscribe() <-chan Config {
	ch := make(chan Config, 1)
	w.mu.Lock()
	w.subs = append(w.subs, ch)
	w.mu.Unlock()
	return ch
}

// Run watches the file until ctx is cancelled. Watching the directory
// rather than the file survives editors that replace the file on save.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}

	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(200 * time.Millisecond)
				debounceC = debounce.C
			} else {
				debounce.Reset(200 * time.Millisecond)
			}
		case <-debounceC:
			debounce = nil
			debounceC = nil
			w.reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("config watch error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn().Err(err).Msg("config reload rejected, keeping previous")
		return
	}

	w.mu.Lock()
	if cfg == w.current {
		w.mu.Unlock()
		return
	}
	w.current = cfg
	subs := make([]chan Config, len(w.subs))
	copy(subs, w.subs)
	w.mu.Unlock()

	w.log.Info().Msg("config reloaded")
	for _, ch := range subs {
		select {
		case ch <- cfg:
		default:
			// drop stale update for slow consumer; drain and retry once
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
			}
		}
	}
}
