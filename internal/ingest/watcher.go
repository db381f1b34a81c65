package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Watcher triggers a rebuild when a source file changes. Bursts of events
// within Debounce collapse into one rebuild.
type Watcher struct {
	rebuilder *Rebuilder
	debounce  time.Duration
	onRebuild func(Report, error)
	logger    *log.Logger
}

// NewWatcher calls onRebuild, if set, after every triggered rebuild.
func NewWatcher(r *Rebuilder, debounce time.Duration, onRebuild func(Report, error)) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{rebuilder: r, debounce: debounce, onRebuild: onRebuild, logger: r.logger}
}

// Dirs returns the existing directories that hold sources: the static base
// of every document glob and the directory of the records file.
func (w *Watcher) Dirs() []string {
	seen := map[string]struct{}{}
	var dirs []string
	add := func(dir string) {
		if dir == "" {
			dir = "."
		}
		dir = filepath.Clean(dir)
		if _, dup := seen[dir]; dup {
			return
		}
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			return
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	for _, pattern := range w.rebuilder.opts.Documents {
		base, _ := doublestar.SplitPattern(filepath.ToSlash(pattern))
		root := filepath.FromSlash(base)
		add(root)
		// fsnotify is not recursive, so every subdirectory is watched too.
		_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err == nil && d.IsDir() {
				add(path)
			}
			return nil
		})
	}
	if f := w.rebuilder.opts.RecordsFile; f != "" {
		add(filepath.Dir(f))
	}
	return dirs
}

// Relevant reports whether a change to path affects the sources.
func (w *Watcher) Relevant(path string) bool {
	clean := filepath.Clean(path)
	if f := w.rebuilder.opts.RecordsFile; f != "" && clean == filepath.Clean(f) {
		return true
	}
	for _, pattern := range w.rebuilder.opts.Documents {
		if ok, _ := doublestar.PathMatch(filepath.Clean(pattern), clean); ok {
			return true
		}
	}
	return false
}

// Run watches until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()

	dirs := w.Dirs()
	if len(dirs) == 0 {
		return fmt.Errorf("watch: no source directories exist")
	}
	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.logger.Printf("watching %d directories", len(dirs))

	// Go 1.23 timers: Reset never delivers a stale tick, so no draining.
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = fw.Add(ev.Name)
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 || !w.Relevant(ev.Name) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("watch error: %v", err)
		case <-timer.C:
			rep, err := w.rebuilder.Rebuild(ctx)
			if err != nil {
				w.logger.Printf("rebuild after change failed: %v", err)
			}
			if w.onRebuild != nil {
				w.onRebuild(rep, err)
			}
		}
	}
}
