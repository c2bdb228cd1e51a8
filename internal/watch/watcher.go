// Package watch reports changes to a single file.
//
// Files in the data directory are replaced by rename, which detaches a watch
// on the file itself, so the watcher observes the parent directory and
// filters on the file name.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the stat interval used when fsnotify is unavailable.
const DefaultPollInterval = 2 * time.Second

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher monitors one file using fsnotify with a polling fallback.
type Watcher struct {
	// path is the absolute path of the watched file.
	path string
	// events delivers a signal each time the file changes.
	// The channel is buffered to 1 so back-to-back writes coalesce.
	events chan struct{}
	// done is closed by [Watcher.Close] to signal goroutines to exit.
	done chan struct{}
	// fsw is the underlying fsnotify watcher; nil when polling.
	fsw  *fsnotify.Watcher
	once sync.Once
	// polling is true when the watcher has fallen back to stat-based polling.
	polling      atomic.Bool
	pollInterval time.Duration
	log          *slog.Logger
}

// Option configures a [Watcher].
type Option func(*Watcher)

// WithPollInterval sets the polling fallback interval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) { w.pollInterval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// WithPolling skips fsnotify and polls from the start.
func WithPolling() Option {
	return func(w *Watcher) { w.polling.Store(true) }
}

// New starts watching path. The file does not need to exist yet.
func New(path string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve watch path: %w", err)
	}
	w := &Watcher{
		path:         abs,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: DefaultPollInterval,
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	if w.polling.Load() {
		go w.poll()
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.polling.Store(true)
		go w.poll()
		return w, nil
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		w.log.Info("cannot watch directory, falling back to polling", "path", filepath.Dir(abs), "error", err)
		fsw.Close()
		w.polling.Store(true)
		go w.poll()
		return w, nil
	}
	w.fsw = fsw
	go w.watch(fsw)
	return w, nil
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Events returns a channel that receives a signal when the file changes.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
		}
	})
	return err
}

// Run calls onChange for each change until ctx is cancelled, then closes the
// watcher. Changes closer together than settle are reported once.
func (w *Watcher) Run(ctx context.Context, settle time.Duration, onChange func()) error {
	defer w.Close()
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.events:
			if settle <= 0 {
				onChange()
				continue
			}
			if timerC == nil {
				timerC = time.After(settle)
			}
		case <-timerC:
			timerC = nil
			onChange()
		}
	}
}

// watch forwards fsnotify events for the watched file. On an fsnotify error
// it closes the native watcher and falls back to [Watcher.poll].
func (w *Watcher) watch(fsw *fsnotify.Watcher) {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.notify()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.Info("fsnotify error, switching to polling", "error", err)
			w.polling.Store(true)
			go w.poll()
			return
		}
	}
}

// poll stats the file and notifies when its modification time or size
// changes.
func (w *Watcher) poll() {
	lastMod, lastSize := w.stat()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			mod, size := w.stat()
			if !mod.Equal(lastMod) || size != lastSize {
				lastMod, lastSize = mod, size
				w.notify()
			}
		}
	}
}

func (w *Watcher) stat() (time.Time, int64) {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}, -1
	}
	return info.ModTime(), info.Size()
}

// notify sends a single signal to the events channel. If a signal is already
// pending the call is a no-op, coalescing rapid successive changes.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
