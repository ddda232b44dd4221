package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/halver/muninn/internal/models"
)

// renameSettle is how long a renamed-away path waits for its Create
// counterpart before it is reported as deleted.
const renameSettle = 200 * time.Millisecond

// Native emits events from OS file notifications via fsnotify. New
// directories created at runtime are added to the watch list. fsnotify
// reports a rename as Rename on the old path plus a separate Create on
// the new one; those are coalesced into a single moved event so a
// renamed pair member relocates instead of running the delete cascade.
type Native struct {
	root   string
	sink   Sink
	logger *slog.Logger

	// Old paths from Rename events, awaiting their Create counterpart.
	pending []string
}

// NewNative creates a native source watching the vault rooted at root
// (an absolute directory path).
func NewNative(root string, sink Sink, logger *slog.Logger) *Native {
	return &Native{root: root, sink: sink, logger: logger}
}

// Run watches until ctx is cancelled.
func (n *Native) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, n.root); err != nil {
		return err
	}
	n.logger.Info("watcher: started", slog.String("root", n.root))

	// flushTimer is used to debounce rename settlement.
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(renameSettle)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(renameSettle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			n.logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			n.flushPending()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			n.handle(w, ev, scheduleFlush)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			n.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (n *Native) handle(w *fsnotify.Watcher, ev fsnotify.Event, scheduleFlush func()) {
	absPath := ev.Name

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(w, absPath); addErr != nil {
				n.logger.Warn("watcher: add new dir failed",
					slog.String("path", absPath),
					slog.String("error", addErr.Error()))
			}
			if rel, ok := n.rel(absPath); ok {
				n.sink(models.Event{Type: models.EventDirectory, Action: models.ActionCreated, Path: rel})
			}
			// Files already inside the new directory produced no events
			// of their own.
			n.emitExisting(absPath)
			return
		}
	}

	if !strings.HasSuffix(absPath, ".md") {
		return
	}
	rel, ok := n.rel(absPath)
	if !ok {
		return
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		if src, matched := n.takePending(absPath); matched {
			if srcRel, srcOK := n.rel(src); srcOK {
				n.sink(models.Event{Type: models.EventFile, Action: models.ActionMoved, Path: rel, SrcPath: srcRel})
				return
			}
		}
		n.sink(models.Event{Type: models.EventFile, Action: models.ActionCreated, Path: rel})
	case ev.Op&fsnotify.Write != 0:
		n.sink(models.Event{Type: models.EventFile, Action: models.ActionModified, Path: rel})
	case ev.Op&fsnotify.Rename != 0:
		// Rename fires on the old path only. Hold it until either the
		// destination's Create lands in a watched dir or the settle
		// window closes with the file really gone.
		n.pending = append(n.pending, absPath)
		scheduleFlush()
	case ev.Op&fsnotify.Remove != 0:
		n.sink(models.Event{Type: models.EventFile, Action: models.ActionDeleted, Path: rel})
	}
}

// takePending matches a Create against held rename sources: same base
// name first, otherwise a lone pending rename claims it. The matched
// source is removed from the hold list.
func (n *Native) takePending(createdAbs string) (string, bool) {
	if len(n.pending) == 0 {
		return "", false
	}
	base := filepath.Base(createdAbs)
	for i, p := range n.pending {
		if filepath.Base(p) == base {
			n.pending = append(n.pending[:i], n.pending[i+1:]...)
			return p, true
		}
	}
	if len(n.pending) == 1 {
		p := n.pending[0]
		n.pending = nil
		return p, true
	}
	return "", false
}

// flushPending reports held renames whose destination never appeared as
// deletions: the file left the vault.
func (n *Native) flushPending() {
	for _, p := range n.pending {
		if rel, ok := n.rel(p); ok {
			n.sink(models.Event{Type: models.EventFile, Action: models.ActionDeleted, Path: rel})
		}
	}
	n.pending = nil
}

// emitExisting reports .md files that were moved in along with their
// directory.
func (n *Native) emitExisting(dirPath string) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		if rel, ok := n.rel(path); ok {
			n.sink(models.Event{Type: models.EventFile, Action: models.ActionCreated, Path: rel})
		}
		return nil
	})
}

func (n *Native) rel(absPath string) (string, bool) {
	rel, err := filepath.Rel(n.root, absPath)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
