package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"backup-timeline/internal/backup"
	"backup-timeline/internal/logging"
	"backup-timeline/internal/metrics"
)

// DefaultDebounce is the quiet period used when none is given.
const DefaultDebounce = 30 * time.Second

// Watcher reports sources that gained a snapshot.
type Watcher struct {
	fsw        *fsnotify.Watcher
	dirs       map[string]string // watched directory -> source key
	debounce   time.Duration
	onSnapshot func(key string)

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// New watches the directory of each source. dirs maps source keys to their
// directories. onSnapshot is called from a timer goroutine with the key of a
// source after a new snapshot appeared and the debounce period elapsed.
func New(dirs map[string]string, debounce time.Duration, onSnapshot func(key string)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		fsw:        fsw,
		dirs:       make(map[string]string, len(dirs)),
		debounce:   debounce,
		onSnapshot: onSnapshot,
		timers:     make(map[string]*time.Timer),
	}

	for key, dir := range dirs {
		dir = filepath.Clean(dir)
		if err := fsw.Add(dir); err != nil {
			logging.Warn("Not watching source %q at %s: %v", key, dir, err)
			metrics.SnapshotEventsTotal.WithLabelValues("error").Inc()
			continue
		}
		w.dirs[dir] = key
		logging.Debug("Watching source %q at %s", key, dir)
	}
	return w, nil
}

// Watched returns the number of watched source directories.
func (w *Watcher) Watched() int {
	return len(w.dirs)
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher error: %v", err)
			metrics.SnapshotEventsTotal.WithLabelValues("error").Inc()
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}

	key, ok := w.dirs[filepath.Dir(event.Name)]
	if !ok {
		return
	}
	if _, ok := backup.ParseSnapshotName(filepath.Base(event.Name)); !ok {
		metrics.SnapshotEventsTotal.WithLabelValues("ignored").Inc()
		return
	}
	if info, err := os.Stat(event.Name); err != nil || !info.IsDir() {
		metrics.SnapshotEventsTotal.WithLabelValues("ignored").Inc()
		return
	}

	metrics.SnapshotEventsTotal.WithLabelValues("created").Inc()
	logging.Debug("New snapshot %s in source %q", filepath.Base(event.Name), key)
	w.schedule(key)
}

// schedule (re)starts the debounce timer of key.
func (w *Watcher) schedule(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.timers[key]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[key] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, key)
		closed := w.closed
		w.mu.Unlock()

		if !closed {
			metrics.SnapshotEventsTotal.WithLabelValues("triggered").Inc()
			w.onSnapshot(key)
		}
	})
}

// Close stops the watcher and drops pending notifications.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for key, t := range w.timers {
		t.Stop()
		delete(w.timers, key)
	}
	w.mu.Unlock()

	return w.fsw.Close()
}
