package git

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports worktree directories that disappear from disk. It watches
// each worktree's parent directory, since a removed directory cannot report
// its own deletion reliably.
type Watcher struct {
	fs *fsnotify.Watcher

	mu      sync.Mutex
	tracked map[string]bool // cleaned worktree path
	parents map[string]int  // parent dir -> tracked children

	removed chan string
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher starts a watcher. Removed paths arrive on Removed().
func NewWatcher() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		fs:      fw,
		tracked: make(map[string]bool),
		parents: make(map[string]int),
		removed: make(chan string, 16),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Removed delivers each tracked path once, after it vanishes.
func (w *Watcher) Removed() <-chan string { return w.removed }

// Watch starts tracking a worktree directory.
func (w *Watcher) Watch(path string) error {
	path = filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tracked[path] {
		return nil
	}
	parent := filepath.Dir(path)
	if w.parents[parent] == 0 {
		if err := w.fs.Add(parent); err != nil {
			return err
		}
	}
	w.parents[parent]++
	w.tracked[path] = true
	return nil
}

// Unwatch stops tracking path.
func (w *Watcher) Unwatch(path string) {
	path = filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.untrackLocked(path)
}

func (w *Watcher) untrackLocked(path string) {
	if !w.tracked[path] {
		return
	}
	delete(w.tracked, path)
	parent := filepath.Dir(path)
	w.parents[parent]--
	if w.parents[parent] <= 0 {
		delete(w.parents, parent)
		_ = w.fs.Remove(parent)
	}
}

// Tracked returns how many worktrees are watched.
func (w *Watcher) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tracked)
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.check(filepath.Clean(ev.Name))
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			worktreeLog.Warn("worktree_watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) check(path string) {
	w.mu.Lock()
	if !w.tracked[path] {
		w.mu.Unlock()
		return
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		w.mu.Unlock()
		return
	}
	w.untrackLocked(path)
	w.mu.Unlock()

	worktreeLog.Info("worktree_removed_externally", slog.String("path", path))
	select {
	case w.removed <- path:
	case <-w.ctx.Done():
	}
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fs.Close()
	<-w.done
	return err
}
