// Package watch keeps a project's documents in line with a directory by
// importing files as they change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/suggest/internal/core/ports/driving"
	"github.com/custodia-labs/suggest/internal/logger"
)

// ChangeType describes what happened to a document.
type ChangeType string

const (
	// ChangeImported means the document was created or updated.
	ChangeImported ChangeType = "imported"

	// ChangeRemoved means the document was deleted.
	ChangeRemoved ChangeType = "removed"
)

// Change is a document change applied by the watcher.
type Change struct {
	Type ChangeType
	Path string
}

// Watcher imports files below a root directory as they change.
type Watcher struct {
	corpus driving.CorpusService
	recs   driving.RecommendationService
	root   string
	opts   driving.ImportOptions

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// New creates a watcher for root. recs may be nil; when set, cached
// predictions of the project are dropped after every applied change.
func New(corpus driving.CorpusService, recs driving.RecommendationService, root string, opts driving.ImportOptions) *Watcher {
	return &Watcher{
		corpus: corpus,
		recs:   recs,
		root:   root,
		opts:   opts,
	}
}

// Watch starts watching the root directory and every visible directory below
// it. Applied changes are sent on the returned channel, which is closed when
// the context is cancelled or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context) (<-chan Change, error) {
	if w.corpus == nil {
		return nil, errors.New("watch: corpus service is required")
	}
	info, err := os.Stat(w.root)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path error: %s is not a directory", w.root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		fsw.Close()
		return nil, errors.New("watch: watcher is closed")
	}
	w.watcher = fsw
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		w.Close()
		return nil, err
	}

	changes := make(chan Change)
	go w.loop(ctx, fsw, changes)
	return changes, nil
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, changes chan<- Change) {
	defer close(changes)
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			for _, change := range w.handleFsEvent(ctx, event) {
				select {
				case changes <- change:
				case <-ctx.Done():
					return
				}
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("Watcher error: %v", err)
		}
	}
}

// handleFsEvent applies one event and returns the resulting changes.
func (w *Watcher) handleFsEvent(ctx context.Context, event fsnotify.Event) []Change {
	if w.hidden(event.Name) {
		return nil
	}

	var changes []Change
	switch {
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil {
			return nil
		}
		if info.IsDir() {
			changes = w.importTree(ctx, event.Name)
		} else if w.importFile(ctx, event.Name) {
			changes = append(changes, Change{Type: ChangeImported, Path: event.Name})
		}
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		if w.removeFile(ctx, event.Name) {
			changes = append(changes, Change{Type: ChangeRemoved, Path: event.Name})
		}
	default:
		return nil
	}

	if len(changes) > 0 && w.recs != nil {
		w.recs.InvalidateProject(w.opts.ProjectID)
	}
	return changes
}

func (w *Watcher) importFile(ctx context.Context, path string) bool {
	written, err := w.corpus.ImportFile(ctx, w.opts, w.root, path)
	if err != nil {
		logger.Warnw("import failed", "path", path, "error", err)
		return false
	}
	if written {
		logger.Debug("Imported %s", path)
	}
	return written
}

func (w *Watcher) removeFile(ctx context.Context, path string) bool {
	if !strings.HasSuffix(path, ".txt") {
		return false
	}
	if err := w.corpus.RemoveFile(ctx, w.opts.ProjectID, w.root, path); err != nil {
		logger.Warnw("remove failed", "path", path, "error", err)
		return false
	}
	logger.Debug("Removed %s", path)
	return true
}

// importTree watches a new directory and imports the files already in it.
func (w *Watcher) importTree(ctx context.Context, dir string) []Change {
	if err := w.addTree(dir); err != nil {
		logger.Warn("Watching %s: %v", dir, err)
	}
	var changes []Change
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error { //nolint:errcheck
		if err != nil || d.IsDir() || w.hidden(path) {
			return nil
		}
		if w.importFile(ctx, path) {
			changes = append(changes, Change{Type: ChangeImported, Path: path})
		}
		return nil
	})
	return changes
}

// addTree adds dir and its visible subdirectories to the watch list.
func (w *Watcher) addTree(dir string) error {
	w.mu.Lock()
	fsw := w.watcher
	w.mu.Unlock()
	if fsw == nil {
		return errors.New("watch: not started")
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.hidden(path) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// hidden reports whether path, relative to the root, has a hidden element.
func (w *Watcher) hidden(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return isHidden(path)
	}
	return isHidden(rel)
}

// isHidden reports whether any element of a path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part != "." && part != ".." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
