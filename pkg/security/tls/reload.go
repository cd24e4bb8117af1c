package tls

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader watches certificate and key files and rebuilds the binding table
// when they change. Certificate renewal (driven externally, e.g. by an ACME
// client) therefore takes effect without a restart.
//
// Renewal tools typically write a temp file and rename it over the old one,
// so the watcher is registered on the parent directories and events are
// filtered back down to the bound files. Rapid event bursts are debounced.
type Reloader struct {
	store    *Store
	debounce *Debouncer
	logger   *slog.Logger

	watched map[string]bool // absolute paths of bound cert/key files
}

// NewReloader creates a reloader for the store's bindings.
func NewReloader(store *Store, debounceInterval time.Duration) *Reloader {
	if debounceInterval <= 0 {
		debounceInterval = 500 * time.Millisecond
	}
	watched := make(map[string]bool)
	for _, f := range store.Files() {
		if abs, err := filepath.Abs(f); err == nil {
			watched[abs] = true
		}
	}
	return &Reloader{
		store:    store,
		debounce: NewDebouncer(debounceInterval),
		logger:   slog.Default().With("component", "tls.reloader"),
		watched:  watched,
	}
}

// Watch blocks, reloading the binding table on file changes, until the
// context is cancelled. A failed reload is logged and the previous table
// stays live.
func (r *Reloader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	defer r.debounce.Stop()

	dirs := make(map[string]bool)
	for f := range r.watched {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %q: %w", dir, err)
		}
	}

	r.logger.Info("certificate watcher started", "directories", len(dirs), "files", len(r.watched))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("certificate watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !r.shouldProcessEvent(event) {
				continue
			}
			r.logger.Debug("certificate file event", "path", event.Name, "op", event.Op.String())

			r.debounce.Trigger(func() {
				if err := r.store.Load(); err != nil {
					r.logger.Error("certificate reload failed, keeping previous bindings", "error", err)
					return
				}
				r.logger.Info("certificate bindings reloaded", "trigger", event.Name)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			// Keep watching despite transient errors.
			r.logger.Error("certificate watcher error", "error", err)
		}
	}
}

// shouldProcessEvent filters directory events down to the bound files.
func (r *Reloader) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return r.watched[abs]
}

// Debouncer collects rapid events and invokes the callback only after a
// quiet period, preventing reload storms while a renewal tool writes
// several files in sequence.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger arms the debouncer with a new event. The callback runs after the
// debounce interval if no further events arrive.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
