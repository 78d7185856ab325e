package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	rwatcher "github.com/radovskyb/watcher"
)

// Watcher polls the index directory and keeps the catalog in step with it:
// new or rewritten artifacts are (re)loaded, deleted ones are uninstalled.
// Indexes installed from other sources are never removed by the watcher.
type Watcher struct {
	cat      *Catalog
	dir      string
	interval time.Duration
	logger   *slog.Logger
}

func NewWatcher(cat *Catalog, dir string, interval time.Duration) *Watcher {
	// The poller reports absolute paths.
	dir = absPath(dir)
	return &Watcher{
		cat:      cat,
		dir:      dir,
		interval: interval,
		logger:   slog.Default().With("component", "catalog-watcher", "dir", dir),
	}
}

// Run blocks until ctx is cancelled or the poller fails.
func (w *Watcher) Run(ctx context.Context) error {
	rw := rwatcher.New()
	rw.FilterOps(rwatcher.Create, rwatcher.Write, rwatcher.Remove, rwatcher.Rename, rwatcher.Move)
	if err := rw.AddRecursive(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- rw.Start(w.interval)
	}()
	w.logger.Info("watching index directory", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			rw.Close()
			return nil
		case ev := <-rw.Event:
			w.handle(ev)
		case err := <-rw.Error:
			w.logger.Error("watcher error", "error", err)
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("index directory poller: %w", err)
			}
			return nil
		}
	}
}

func (w *Watcher) handle(ev rwatcher.Event) {
	if ev.FileInfo != nil && ev.IsDir() {
		return
	}
	switch ev.Op {
	case rwatcher.Create, rwatcher.Write:
		w.load(ev.Path)
	case rwatcher.Remove:
		w.remove(ev.Path)
	case rwatcher.Rename, rwatcher.Move:
		w.remove(ev.OldPath)
		w.load(ev.Path)
	}
}

func (w *Watcher) load(path string) {
	name, ok := NameFromPath(w.dir, path)
	if !ok {
		return
	}
	if want, ok := w.resolve(name); ok && !samePath(want, path) {
		w.logger.Debug("ignoring shadowed artifact", "index", name, "path", path, "using", want)
		return
	}
	if err := w.cat.LoadFile(name, path); err != nil {
		w.logger.Error("reloading index failed, keeping previous version",
			"index", name,
			"path", path,
			"error", err,
		)
	}
}

// remove uninstalls name only when path is the file it was loaded from. If
// another artifact for the same name remains, that one takes over.
func (w *Watcher) remove(path string) {
	name, ok := NameFromPath(w.dir, path)
	if !ok {
		return
	}
	entry, err := w.cat.Get(name)
	if err != nil || entry.Source != SourceFile || !samePath(entry.Path, path) {
		return
	}
	if next, ok := w.resolve(name); ok {
		if err := w.cat.LoadFile(name, next); err == nil {
			return
		}
		w.logger.Warn("remaining artifact failed to load", "index", name, "path", next)
	}
	w.cat.Remove(name)
}

// resolve returns the artifact LoadDir would pick for name right now.
func (w *Watcher) resolve(name string) (string, bool) {
	found, err := discover(w.dir)
	if err != nil {
		return "", false
	}
	path, ok := found[name]
	return path, ok
}

func samePath(a, b string) bool {
	return absPath(a) == absPath(b)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
