// Package dualmutex provides a mutex usable from both blocking call sites and
// context-aware (cancellable) call sites in the same process.
//
// One blocking primitive is the single source of truth for the locked state.
// Waiters never block inside it: each waiter registers its own notification
// channel and loops try-acquire / wait, so a notification consumed between a
// failed attempt and the wait can never strand a waiter, and no waiter ever
// depends on another caller's goroutine making progress.
package dualmutex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// DefaultTimeout bounds blocking acquisition. Seconds, not milliseconds: a
// holder running a full critical section must not spuriously time out a
// well-behaved blocking caller.
const DefaultTimeout = 30 * time.Second

// maxBackoff caps the retry wait between failed attempts.
const maxBackoff = 250 * time.Millisecond

// TimeoutError reports that acquisition exceeded its budget.
type TimeoutError struct {
	Wait     time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mutex acquisition timed out after %s (%d attempts)",
		e.Wait.Round(time.Millisecond), e.Attempts)
}

// Stats is a point-in-time snapshot of lock activity.
type Stats struct {
	Acquisitions uint64
	Contentions  uint64
	Timeouts     uint64
	TotalWait    time.Duration
}

// Mutex is the dual-mode lock. The zero value is unusable; construct with New.
type Mutex struct {
	timeout time.Duration
	logger  *slog.Logger

	// mu guards locked and stats. Waiter channels live in a separate
	// registry with its own short init lock so registering a waiter can
	// never nest inside the state lock.
	mu     sync.Mutex
	locked bool
	stats  Stats

	initMu     sync.Mutex
	waiters    map[uint64]chan struct{}
	nextWaiter uint64
}

// Option configures the mutex.
type Option func(*Mutex)

// WithTimeout overrides the blocking-path timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Mutex) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger enables structured acquisition diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mutex) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a dual-mode mutex.
func New(opts ...Option) *Mutex {
	m := &Mutex{
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
		waiters: make(map[uint64]chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TryLock acquires the mutex without waiting.
func (m *Mutex) TryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	m.locked = true
	m.stats.Acquisitions++
	return true
}

// Lock acquires the mutex from a blocking call site, bounded by the
// configured timeout.
func (m *Mutex) Lock() error {
	return m.acquire(context.Background(), m.timeout)
}

// LockContext acquires the mutex from a cancellable call site. Only the
// calling goroutine is suspended; the configured timeout still applies on
// top of ctx.
func (m *Mutex) LockContext(ctx context.Context) error {
	return m.acquire(ctx, m.timeout)
}

// Unlock releases the mutex and wakes every registered waiter. Unlocking an
// unlocked mutex panics, matching sync.Mutex.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	if !m.locked {
		m.mu.Unlock()
		panic("dualmutex: unlock of unlocked mutex")
	}
	m.locked = false
	m.mu.Unlock()

	m.initMu.Lock()
	for _, ch := range m.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	m.initMu.Unlock()
}

// With runs fn while holding the mutex, releasing it even when fn panics.
func (m *Mutex) With(fn func() error) error {
	if err := m.Lock(); err != nil {
		return err
	}
	defer m.Unlock()
	return fn()
}

// WithContext runs fn while holding the mutex, acquired cancellably.
func (m *Mutex) WithContext(ctx context.Context, fn func() error) error {
	if err := m.LockContext(ctx); err != nil {
		return err
	}
	defer m.Unlock()
	return fn()
}

// Held reports whether the mutex is currently locked by anyone.
func (m *Mutex) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// Stats returns a snapshot of acquisition counters.
func (m *Mutex) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Waiters reports the number of registered waiter channels. Used by tests to
// verify no registration outlives its waiter.
func (m *Mutex) Waiters() int {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	return len(m.waiters)
}

func (m *Mutex) acquire(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.TryLock() {
		return nil
	}

	start := time.Now()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	id, notify := m.register()
	defer m.unregister(id)

	attempts := 1
	backoff := 5 * time.Millisecond
	for {
		// A release may have slipped in between registration (or the last
		// wait) and now, so the acquire attempt always comes first.
		if m.tryLockContended(start) {
			m.logger.Debug("mutex acquired",
				"op", "acquire", "wait_ms", time.Since(start).Milliseconds(), "attempts", attempts)
			return nil
		}
		attempts++

		// Bounded backoff with jitter so a dropped notification only delays,
		// never strands, this waiter.
		wait := backoff + time.Duration(rand.Int63n(int64(backoff)))
		if backoff < maxBackoff {
			backoff *= 2
		}
		retry := time.NewTimer(wait)
		select {
		case <-notify:
			retry.Stop()
		case <-retry.C:
		case <-ctx.Done():
			retry.Stop()
			return ctx.Err()
		case <-deadline.C:
			retry.Stop()
			m.mu.Lock()
			m.stats.Timeouts++
			m.mu.Unlock()
			return &TimeoutError{Wait: time.Since(start), Attempts: attempts}
		}
		m.logger.Debug("mutex contended, retrying",
			"op", "acquire", "wait_ms", time.Since(start).Milliseconds(), "attempts", attempts)
	}
}

func (m *Mutex) tryLockContended(start time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	m.locked = true
	m.stats.Acquisitions++
	m.stats.Contentions++
	m.stats.TotalWait += time.Since(start)
	return true
}

// register creates this waiter's notification channel. The registry has its
// own lock, checked twice around lazy map construction, and the channel is
// built outside the state lock so registration can never deadlock against a
// holder releasing.
func (m *Mutex) register() (uint64, chan struct{}) {
	ch := make(chan struct{}, 1)

	m.initMu.Lock()
	if m.waiters == nil {
		m.waiters = make(map[uint64]chan struct{})
	}
	id := m.nextWaiter
	m.nextWaiter++
	m.waiters[id] = ch
	m.initMu.Unlock()
	return id, ch
}

func (m *Mutex) unregister(id uint64) {
	m.initMu.Lock()
	delete(m.waiters, id)
	m.initMu.Unlock()
}

// IsTimeout reports whether err is a mutex acquisition timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
