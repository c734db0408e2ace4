// Package storage persists the todo list to a JSON file with atomic
// replacement, rotating backups, cross-process advisory locking, and
// best-effort repair of corrupted documents.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/todosafe/todosafe/internal/domain"
	"github.com/todosafe/todosafe/internal/dualmutex"
	"github.com/todosafe/todosafe/internal/filelock"
	"github.com/todosafe/todosafe/internal/pathutil"
	"github.com/todosafe/todosafe/internal/securedir"
)

// DefaultSlowThreshold flags operations that held the lock suspiciously long.
const DefaultSlowThreshold = 500 * time.Millisecond

// Options configures a Store.
type Options struct {
	// Path of the primary JSON file.
	Path string
	// LockTimeout and LockRetry tune the advisory lock (defaults 30s/100ms).
	LockTimeout time.Duration
	LockRetry   time.Duration
	// BackupCount is the retention limit: 0 means the default (3), negative
	// disables backups entirely.
	BackupCount int
	// CacheEnabled allows Load to serve an mtime-guarded in-memory copy.
	CacheEnabled bool
	// DegradedLock forces the sidecar lock emulation (no native OS locks).
	DegradedLock bool
	// DryRun is the default for batch deletes; an explicit argument wins.
	DryRun bool
	// SlowThreshold triggers a warning log for operations above it.
	SlowThreshold time.Duration
	Logger        *slog.Logger
}

// Metrics counts I/O activity since the store was created.
type Metrics struct {
	Loads     uint64
	Saves     uint64
	Backups   uint64
	CacheHits uint64
}

// NotFoundError reports an operation on a todo id that does not exist.
type NotFoundError struct {
	ID int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("todo %d not found", e.ID)
}

// Store is the file-backed record store. All mutating operations run their
// whole read-modify-write sequence inside one lock acquisition, which covers
// both in-process callers (dual-mode mutex) and other processes (advisory
// file lock).
type Store struct {
	opts  Options
	mu    *dualmutex.Mutex
	cache loadCache

	loads     atomic.Uint64
	saves     atomic.Uint64
	backups   atomic.Uint64
	cacheHits atomic.Uint64
}

// New creates a store and secures its directory. The directory bootstrap
// happens exactly once, at construction.
func New(opts Options) (*Store, error) {
	if opts.Path == "" {
		opts.Path = ".todo.json"
	}
	abs, err := pathutil.ValidateStorePath(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}
	opts.Path = abs
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = filelock.DefaultTimeout
	}
	if opts.LockRetry <= 0 {
		opts.LockRetry = filelock.DefaultRetryInterval
	}
	switch {
	case opts.BackupCount == 0:
		opts.BackupCount = DefaultBackupCount
	case opts.BackupCount < 0:
		opts.BackupCount = 0
	}
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = DefaultSlowThreshold
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	if err := securedir.Ensure(filepath.Dir(opts.Path), opts.Logger); err != nil {
		return nil, err
	}

	s := &Store{
		opts: opts,
		mu: dualmutex.New(
			dualmutex.WithTimeout(opts.LockTimeout),
			dualmutex.WithLogger(opts.Logger),
		),
	}
	s.cache.enabled = opts.CacheEnabled
	return s, nil
}

// Path returns the absolute path of the primary file.
func (s *Store) Path() string { return s.opts.Path }

// Metrics returns a snapshot of I/O counters.
func (s *Store) Metrics() Metrics {
	return Metrics{
		Loads:     s.loads.Load(),
		Saves:     s.saves.Load(),
		Backups:   s.backups.Load(),
		CacheHits: s.cacheHits.Load(),
	}
}

// LockStats exposes the in-process lock counters.
func (s *Store) LockStats() dualmutex.Stats { return s.mu.Stats() }

// Load returns all todos. A cache hit avoids disk and locking entirely;
// otherwise the read happens under the lock so no partially replaced file
// is ever observed.
func (s *Store) Load(ctx context.Context) ([]domain.Todo, error) {
	defer s.observe("load", time.Now())
	if todos, ok := s.cache.get(s.opts.Path); ok {
		s.cacheHits.Add(1)
		return todos, nil
	}
	var todos []domain.Todo
	err := s.lockContext(ctx, func() error {
		var err error
		todos, err = s.loadLocked()
		return err
	})
	return todos, err
}

// Save replaces the stored set wholesale under the lock, backing up the
// previous state first.
func (s *Store) Save(ctx context.Context, todos []domain.Todo) error {
	defer s.observe("save", time.Now())
	return s.lockContext(ctx, func() error {
		return s.saveLocked(todos)
	})
}

// Add appends a todo with a freshly allocated id. dueDate may be empty.
func (s *Store) Add(ctx context.Context, text, dueDate string) (domain.Todo, error) {
	defer s.observe("add", time.Now())
	var added domain.Todo
	err := s.lockContext(ctx, func() error {
		todos, err := s.loadLocked()
		if err != nil {
			return err
		}
		todo, err := domain.New(domain.NextID(todos), text)
		if err != nil {
			return err
		}
		if dueDate != "" {
			if err := todo.SetDueDate(dueDate); err != nil {
				return err
			}
		}
		added = todo
		return s.saveLocked(append(todos, todo))
	})
	return added, err
}

// Get returns one todo by id.
func (s *Store) Get(ctx context.Context, id int) (domain.Todo, error) {
	todos, err := s.Load(ctx)
	if err != nil {
		return domain.Todo{}, err
	}
	for _, t := range todos {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Todo{}, &NotFoundError{ID: id}
}

// SetDone marks a todo done or pending.
func (s *Store) SetDone(ctx context.Context, id int, done bool) (domain.Todo, error) {
	return s.update(ctx, "set_done", id, func(t *domain.Todo) error {
		if done {
			t.MarkDone()
		} else {
			t.MarkUndone()
		}
		return nil
	})
}

// Rename replaces a todo's text.
func (s *Store) Rename(ctx context.Context, id int, text string) (domain.Todo, error) {
	return s.update(ctx, "rename", id, func(t *domain.Todo) error {
		return t.Rename(text)
	})
}

// SetDueDate sets a todo's due date. An empty date clears it.
func (s *Store) SetDueDate(ctx context.Context, id int, date string) (domain.Todo, error) {
	return s.update(ctx, "set_due", id, func(t *domain.Todo) error {
		return t.SetDueDate(date)
	})
}

// Delete removes one todo by id.
func (s *Store) Delete(ctx context.Context, id int) error {
	defer s.observe("delete", time.Now())
	return s.lockContext(ctx, func() error {
		todos, err := s.loadLocked()
		if err != nil {
			return err
		}
		kept := todos[:0]
		found := false
		for _, t := range todos {
			if t.ID == id {
				found = true
				continue
			}
			kept = append(kept, t)
		}
		if !found {
			return &NotFoundError{ID: id}
		}
		return s.saveLocked(kept)
	})
}

// DeleteDone removes all completed todos. dryRun, when non-nil, wins over
// the TODOSAFE_DRY_RUN environment variable and the configured default.
// It returns the todos that were (or would be) removed.
func (s *Store) DeleteDone(ctx context.Context, dryRun *bool) ([]domain.Todo, error) {
	defer s.observe("delete_done", time.Now())
	dry := s.resolveDryRun(dryRun)
	var removed []domain.Todo
	err := s.lockContext(ctx, func() error {
		todos, err := s.loadLocked()
		if err != nil {
			return err
		}
		kept := make([]domain.Todo, 0, len(todos))
		for _, t := range todos {
			if t.Done {
				removed = append(removed, t)
				continue
			}
			kept = append(kept, t)
		}
		if dry || len(removed) == 0 {
			return nil
		}
		return s.saveLocked(kept)
	})
	if err == nil && dry {
		s.opts.Logger.Info("dry run: no todos deleted", "would_delete", len(removed))
	}
	return removed, err
}

// update applies fn to one record inside a single lock acquisition.
func (s *Store) update(ctx context.Context, op string, id int, fn func(*domain.Todo) error) (domain.Todo, error) {
	defer s.observe(op, time.Now())
	var updated domain.Todo
	err := s.lockContext(ctx, func() error {
		todos, err := s.loadLocked()
		if err != nil {
			return err
		}
		for i := range todos {
			if todos[i].ID != id {
				continue
			}
			if err := fn(&todos[i]); err != nil {
				return err
			}
			updated = todos[i]
			return s.saveLocked(todos)
		}
		return &NotFoundError{ID: id}
	})
	return updated, err
}

// loadLocked reads and parses the file. Caller holds the lock.
func (s *Store) loadLocked() ([]domain.Todo, error) {
	s.loads.Add(1)
	data, err := readFileRetry(s.opts.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			todos := []domain.Todo{}
			s.cache.put(s.opts.Path, todos)
			return todos, nil
		}
		return nil, err
	}
	todos, err := parseDocument(s.opts.Path, data, s.opts.Logger)
	if err != nil {
		return nil, err
	}
	s.cache.put(s.opts.Path, todos)
	return todos, nil
}

// saveLocked backs up the previous state then atomically replaces the file.
// Caller holds the lock.
func (s *Store) saveLocked(todos []domain.Todo) error {
	if wrote, err := s.createBackup(); err != nil {
		// New data beats the ability to roll back.
		s.opts.Logger.Warn("backup failed, continuing with save", "path", s.opts.Path, "err", err)
	} else if wrote {
		s.backups.Add(1)
	}

	payload, err := encodeDocument(todos)
	if err != nil {
		return err
	}
	s.cache.invalidate()
	if err := writeFileAtomic(s.opts.Path, payload); err != nil {
		return err
	}
	s.saves.Add(1)
	s.cache.put(s.opts.Path, todos)
	return nil
}

// lock runs fn holding both the in-process mutex and the OS advisory lock.
func (s *Store) lock(fn func() error) error {
	return s.lockContext(context.Background(), fn)
}

func (s *Store) lockContext(ctx context.Context, fn func() error) error {
	return s.mu.WithContext(ctx, func() error {
		fl := filelock.New(s.opts.Path, filelock.Options{
			Timeout:       s.opts.LockTimeout,
			RetryInterval: s.opts.LockRetry,
			Degraded:      s.opts.DegradedLock,
			Logger:        s.opts.Logger,
		})
		if err := fl.Acquire(ctx); err != nil {
			return err
		}
		defer func() {
			if err := fl.Release(); err != nil {
				s.opts.Logger.Warn("lock release failed", "path", s.opts.Path, "err", err)
			}
		}()
		return fn()
	})
}

func (s *Store) resolveDryRun(explicit *bool) bool {
	if explicit != nil {
		return *explicit
	}
	if env := os.Getenv("TODOSAFE_DRY_RUN"); env != "" {
		if v, err := strconv.ParseBool(env); err == nil {
			return v
		}
	}
	return s.opts.DryRun
}

func (s *Store) observe(op string, start time.Time) {
	elapsed := time.Since(start)
	if elapsed >= s.opts.SlowThreshold {
		s.opts.Logger.Warn("slow storage operation",
			"op", op, "path", s.opts.Path, "elapsed_ms", elapsed.Milliseconds())
		return
	}
	s.opts.Logger.Debug("storage operation",
		"op", op, "path", s.opts.Path, "elapsed_ms", elapsed.Milliseconds())
}

func dirOf(path string) string { return filepath.Dir(path) }
