package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ziadkadry99/distill/internal/logger"
)

// DefaultDebounce is how long Watch waits for edits to settle.
const DefaultDebounce = 2 * time.Second

// Watch reports changes to documents under Root. The returned channel
// receives one value per burst of edits, once no further relevant event
// has arrived for debounce. New directories are watched as they appear.
// The channel is closed when ctx is done.
func (f FileSystem) Watch(ctx context.Context, debounce time.Duration) (<-chan struct{}, error) {
	root, err := filepath.Abs(f.Root)
	if err != nil {
		return nil, fmt.Errorf("source: resolve root: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("source: watcher: %w", err)
	}
	if err := addTree(w, root); err != nil {
		w.Close()
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer w.Close()

		timer := time.NewTimer(debounce)
		timer.Stop()
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !skipDir(info.Name()) {
						if err := addTree(w, ev.Name); err != nil {
							logger.Warn("cannot watch new directory", "path", ev.Name, "err", err)
						}
						continue
					}
				}
				if f.relevant(root, ev) {
					logger.Debug("document changed", "path", ev.Name, "op", ev.Op.String())
					timer.Reset(debounce)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("watch error", "err", err)
			case <-timer.C:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

func addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.Add(p); err != nil {
			return fmt.Errorf("source: watch %s: %w", p, err)
		}
		return nil
	})
}

// relevant reports whether an event touches a file Documents would read.
// Permission changes are ignored; removals and renames count, since the
// file can no longer be checked.
func (f FileSystem) relevant(root string, ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if skipDir(dir) {
			return false
		}
	}
	if sourceType(parts[len(parts)-1]) == "" {
		return false
	}
	return included(rel, f.Include, f.Exclude)
}
