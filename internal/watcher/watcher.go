// Package watcher reports PDF files that appear in a directory once they
// have stopped changing.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultSettle is how long a file must be quiet before it is reported.
const DefaultSettle = 500 * time.Millisecond

// Handler is called once per settled PDF, one call at a time.
type Handler func(ctx context.Context, path string)

// Watcher watches one directory.
type Watcher struct {
	dir     string
	settle  time.Duration
	handler Handler
	logger  *logrus.Logger

	mu       sync.Mutex
	pending  map[string]*time.Timer
	ready    chan string
	stopped  chan struct{}
	watching chan struct{}
	started  sync.Once
}

// New creates a watcher for dir.
func New(dir string, settle time.Duration, handler Handler, logger *logrus.Logger) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Watcher{
		dir:      dir,
		settle:   settle,
		handler:  handler,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
		ready:    make(chan string, 16),
		stopped:  make(chan struct{}),
		watching: make(chan struct{}),
	}
}

// Watching returns a channel that closes once the directory is watched,
// or once Run has returned without watching it.
func (w *Watcher) Watching() <-chan struct{} {
	return w.watching
}

func (w *Watcher) markWatching() {
	w.started.Do(func() { close(w.watching) })
}

// IsPDF reports whether path has a .pdf extension.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// Run watches until ctx is cancelled. A watcher runs at most once.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.stopped)
	defer w.markWatching()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if err := fsw.Close(); err != nil {
			w.logger.WithError(err).Warn("Failed to close file watcher")
		}
	}()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.markWatching()
	w.logger.WithField("dir", w.dir).Info("Watching for PDF files")

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !IsPDF(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.touch(event.Name)
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.forget(event.Name)
			}
		case path := <-w.ready:
			w.handler(ctx, path)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Error("File watcher error")
		}
	}
}

// touch restarts the settle timer of path.
func (w *Watcher) touch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.stopped:
		}
	})
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
