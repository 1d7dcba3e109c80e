// Package watch provides optional incremental invalidation of the job
// index (SPEC_FULL.md §11.2): a directory watch over export_directory that
// shrinks the window between a DSX file edit and the next full rebuild
// picking it up. A full build_index pass remains the source of truth;
// this is additive, not a replacement. Adapted from the teacher's
// internal/monitors/file_monitor.go directory-resolution/start-stop shape,
// with nxadm/tail's line-tailing replaced by fsnotify's directory events
// since this domain invalidates whole files, not lines.
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Invalidator is the subset of JobIndex this watcher depends on.
type Invalidator interface {
	InvalidateFile(path string)
}

// Watcher watches a directory tree for DSX file changes.
type Watcher struct {
	root        string
	invalidator Invalidator
	logger      *logrus.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	running bool
}

// New constructs a Watcher rooted at root. Start must be called to begin
// watching.
func New(root string, invalidator Invalidator, logger *logrus.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{root: root, invalidator: invalidator, logger: logger, fsw: fsw}, nil
}

// Start adds root and its subdirectories to the watch set and begins
// processing events in a background goroutine. It returns once the
// initial directory walk completes; Stop (or ctx cancellation) ends the
// background goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addDirs(w.root); err != nil {
		return err
	}

	go w.run(ctx)

	w.logger.WithFields(logrus.Fields{
		"component": "watch",
		"root":      w.root,
	}).Info("started directory watch for incremental invalidation")

	return nil
}

func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if addErr := w.fsw.Add(path); addErr != nil {
				w.logger.WithError(addErr).WithField("dir", path).Warn("failed to watch directory")
			}
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("stopping directory watch")
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
			w.logger.WithError(err).Warn("watch error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !strings.EqualFold(filepath.Ext(event.Name), ".dsx") {
		return
	}

	switch {
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		w.invalidator.InvalidateFile(event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.invalidator.InvalidateFile(event.Name)
	}
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	return w.fsw.Close()
}
