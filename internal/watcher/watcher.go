// Package watcher recursively watches one or more source-tree roots and
// emits debounced batches of modified/deleted paths.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	cwerrors "github.com/codewitness/codewitness/internal/errors"
)

// Batch is a coalesced set of path changes emitted after the debounce
// window elapses: ordered, deduplicated modified and deleted path sets
// rather than individual events.
type Batch struct {
	Modified []string
	Deleted  []string
}

// Options configures the watcher.
type Options struct {
	DebounceWindow time.Duration
	EventBuffer    int
}

// DefaultOptions matches internal/config's IndexingConfig.DebounceMs
// default of 500ms.
func DefaultOptions() Options {
	return Options{DebounceWindow: 500 * time.Millisecond, EventBuffer: 1000}
}

// Watcher recursively watches a set of roots using fsnotify, emitting
// debounced Batches on Events().
type Watcher struct {
	fsw       *fsnotify.Watcher
	debouncer *debouncer
	logger    *slog.Logger
	errCh     chan error
	roots     []string
}

// New creates a Watcher over roots.
func New(roots []string, opts Options, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, cwerrors.WatcherError(cwerrors.ErrCodeWatcherWatchFailed, "creating fsnotify watcher", err)
	}
	for _, root := range roots {
		if err := addRecursive(fsw, root); err != nil {
			fsw.Close()
			return nil, cwerrors.WatcherError(cwerrors.ErrCodeWatcherWatchFailed, "watching "+root, err)
		}
	}
	return &Watcher{
		fsw:       fsw,
		debouncer: newDebouncer(opts.DebounceWindow, opts.EventBuffer),
		logger:    logger,
		errCh:     make(chan error, 16),
		roots:     roots,
	}, nil
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

// Run drains fsnotify events into the debouncer until ctx is canceled. Call
// this in its own goroutine; read Batches from Events().
func (w *Watcher) Run(ctx context.Context) {
	defer w.debouncer.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errCh <- cwerrors.WatcherError(cwerrors.ErrCodeWatcherProcessFailed, "fsnotify error", err):
			default:
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	// fsnotify can surface events from outside the watched roots (sibling
	// mounts, recursive ancestors); drop them before they reach the
	// debouncer.
	if !w.inRoots(ev.Name) {
		return
	}
	switch {
	case ev.Op&fsnotify.Create != 0:
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(ev.Name)
		}
		w.debouncer.add(ev.Name, opCreate)
	case ev.Op&fsnotify.Write != 0:
		w.debouncer.add(ev.Name, opModify)
	case ev.Op&fsnotify.Remove != 0:
		w.debouncer.add(ev.Name, opDelete)
	case ev.Op&fsnotify.Rename != 0:
		// fsnotify emits RENAME for the old path only; the new path (if
		// any) arrives as a separate CREATE event, so a rename becomes a
		// delete of the old path plus an index of the new one.
		w.debouncer.add(ev.Name, opDelete)
	}
}

// inRoots reports whether path lives under one of the watched roots.
func (w *Watcher) inRoots(path string) bool {
	for _, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Events returns the channel of debounced batches. Closed when Run returns.
func (w *Watcher) Events() <-chan Batch {
	return w.debouncer.output
}

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errCh
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
