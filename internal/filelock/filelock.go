// Package filelock provides a cross-platform advisory file lock with timeout,
// retry, and stale-lock reclamation.
//
// The native OS lock (fcntl record lock on POSIX, LockFileEx range lock on
// Windows) is taken on a sidecar "<path>.lock" file so the protected file
// itself can still be atomically replaced while the lock is held. When the
// native API is unavailable the lock degrades to a metadata sidecar holding
// the owner PID and acquisition time, which other processes use to detect
// and reclaim stale locks.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Defaults for lock acquisition. The timeout is deliberately generous:
// a holder doing a full read-modify-write cycle should never spuriously
// time out a well-behaved waiter.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryInterval = 100 * time.Millisecond
	DefaultStaleAfter    = 5 * time.Minute
)

// Options configures a Lock.
type Options struct {
	Timeout       time.Duration
	RetryInterval time.Duration
	// StaleAfter bounds how long a degraded-mode sidecar is honored after
	// its holder stops updating it.
	StaleAfter time.Duration
	// Degraded forces the sidecar-file emulation instead of the native API.
	Degraded bool
	Logger   *slog.Logger
}

func (o *Options) fill() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// TimeoutError reports that lock acquisition exceeded its budget. It is the
// only lock error a caller may sensibly retry.
type TimeoutError struct {
	Op       string
	Path     string
	Elapsed  time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: could not acquire lock on %s after %s (%d attempts)",
		e.Op, e.Path, e.Elapsed.Round(time.Millisecond), e.Attempts)
}

// Lock is an exclusive advisory lock on one file path. A Lock is not safe for
// concurrent use; in-process serialization is the dual-mode mutex's job.
type Lock struct {
	path string
	opts Options

	file     *os.File
	degraded bool
	sidecar  *sidecarLock
	rng      lockRange // platform-specific unlock range, cached at acquire
}

// New creates a lock bound to the canonical path of the file to protect.
func New(path string, opts Options) *Lock {
	opts.fill()
	return &Lock{path: path, opts: opts}
}

// LockPath returns the sidecar path holding the OS-level lock.
func (l *Lock) LockPath() string { return l.path + ".lock" }

// Acquire obtains the exclusive lock, retrying on contention until the
// timeout elapses. On timeout no lock state is left behind. Non-contention
// errors are returned immediately and must not be retried by the caller.
func (l *Lock) Acquire(ctx context.Context) error {
	if l.file != nil || l.sidecar != nil {
		return fmt.Errorf("lock on %s already held", l.path)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.opts.Degraded {
		return l.acquireDegraded(ctx)
	}

	f, err := os.OpenFile(l.LockPath(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	start := time.Now()
	attempts := 0
	for {
		attempts++
		rng, err := tryLockFile(f)
		if err == nil {
			l.file = f
			l.rng = rng
			l.opts.Logger.Debug("lock acquired",
				"op", "acquire", "path", l.path,
				"wait_ms", time.Since(start).Milliseconds(), "attempts", attempts)
			return nil
		}
		if isLockUnsupported(err) {
			// Native locking unavailable on this filesystem; fall back to
			// the PID-sidecar emulation for the remainder of the budget.
			_ = f.Close()
			l.opts.Logger.Warn("native file locking unavailable, using degraded mode",
				"path", l.path, "err", err)
			return l.acquireDegraded(ctx)
		}
		if !isContention(err) {
			_ = f.Close()
			return fmt.Errorf("lock %s: %w", l.path, err)
		}

		elapsed := time.Since(start)
		if elapsed >= l.opts.Timeout {
			_ = f.Close()
			return &TimeoutError{Op: "acquire", Path: l.path, Elapsed: elapsed, Attempts: attempts}
		}
		l.opts.Logger.Debug("lock contended, retrying",
			"op", "acquire", "path", l.path,
			"wait_ms", elapsed.Milliseconds(), "attempts", attempts)
		if err := sleepInterruptible(ctx, l.opts.RetryInterval); err != nil {
			_ = f.Close()
			return err
		}
	}
}

// Release drops the lock. The unlock targets the exact range cached at
// acquire time; releasing an unheld lock is a no-op.
func (l *Lock) Release() error {
	if l.sidecar != nil {
		err := l.sidecar.release()
		l.sidecar = nil
		return err
	}
	if l.file == nil {
		return nil
	}
	unlockErr := unlockFile(l.file, l.rng)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}

// Degraded reports whether the lock fell back to the sidecar emulation.
func (l *Lock) Degraded() bool { return l.degraded || l.sidecar != nil }

func (l *Lock) acquireDegraded(ctx context.Context) error {
	l.degraded = true
	sc, err := acquireSidecar(ctx, l.path, l.opts)
	if err != nil {
		return err
	}
	l.sidecar = sc
	return nil
}

func sleepInterruptible(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsTimeout reports whether err is a lock acquisition timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
