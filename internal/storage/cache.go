package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/todosafe/todosafe/internal/domain"
)

// loadCache keeps the last parsed record set in memory, guarded by the
// file's modification time. A missing file is cached as empty rather than
// bypassing the cache.
type loadCache struct {
	mu      sync.Mutex
	enabled bool
	valid   bool
	missing bool
	mtime   time.Time
	size    int64
	todos   []domain.Todo
}

// get returns the cached records when the on-disk state is unchanged.
func (c *loadCache) get(path string) ([]domain.Todo, bool) {
	if !c.enabled {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		return nil, false
	}

	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && c.missing {
			return nil, true
		}
		return nil, false
	}
	if c.missing || !fi.ModTime().Equal(c.mtime) || fi.Size() != c.size {
		return nil, false
	}
	out := make([]domain.Todo, len(c.todos))
	copy(out, c.todos)
	return out, true
}

// put records the parsed set together with the file state it was read from.
func (c *loadCache) put(path string, todos []domain.Todo) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	fi, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		c.missing = true
		c.mtime = time.Time{}
		c.size = 0
	case err != nil:
		c.valid = false
		return
	default:
		c.missing = false
		c.mtime = fi.ModTime()
		c.size = fi.Size()
	}
	c.todos = make([]domain.Todo, len(todos))
	copy(c.todos, todos)
	c.valid = true
}

func (c *loadCache) invalidate() {
	c.mu.Lock()
	c.valid = false
	c.todos = nil
	c.mu.Unlock()
}

// InvalidateCache drops the in-memory copy; the next Load touches disk.
func (s *Store) InvalidateCache() {
	s.cache.invalidate()
}

// WatchInvalidate drops the cache whenever the todo file changes on disk.
// It blocks until ctx is done. Intended for long-lived callers (watch mode,
// the MCP server); short CLI invocations rely on the mtime guard alone.
func (s *Store) WatchInvalidate(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: the file itself disappears on every atomic
	// replace, which would silently drop a direct watch.
	if err := w.Add(dirOf(s.opts.Path)); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Name == s.opts.Path {
				s.cache.invalidate()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.opts.Logger.Warn("cache watcher error", "path", s.opts.Path, "err", err)
		}
	}
}
