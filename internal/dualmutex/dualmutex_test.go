package dualmutex

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTryLock(t *testing.T) {
	m := New()
	if !m.TryLock() {
		t.Fatal("expected first TryLock to succeed")
	}
	if m.TryLock() {
		t.Fatal("expected second TryLock to fail while held")
	}
	m.Unlock()
	if !m.TryLock() {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	m.Unlock()
}

func TestLockBlocksUntilReleased(t *testing.T) {
	m := New()
	if err := m.Lock(); err != nil {
		t.Fatalf("lock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := m.Lock(); err != nil {
			t.Errorf("second lock: %v", err)
			return
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	m.Unlock()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second lock never acquired after release")
	}
	m.Unlock()
}

func TestLockTimeout(t *testing.T) {
	m := New(WithTimeout(50 * time.Millisecond))
	if err := m.Lock(); err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer m.Unlock()

	err := m.Lock()
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTimeout(err) {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
	if m.Stats().Timeouts != 1 {
		t.Fatalf("expected 1 recorded timeout, got %d", m.Stats().Timeouts)
	}
}

func TestLockContextCancel(t *testing.T) {
	m := New()
	if err := m.Lock(); err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer m.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.LockContext(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled waiter never returned")
	}
}

func TestMixedBlockingAndContextCallers(t *testing.T) {
	m := New()
	const goroutines = 8
	const iterations = 50

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		useContext := i%2 == 0
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				fn := func() error {
					counter++
					return nil
				}
				var err error
				if useContext {
					err = m.WithContext(context.Background(), fn)
				} else {
					err = m.With(fn)
				}
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if counter != goroutines*iterations {
		t.Fatalf("expected %d increments, got %d", goroutines*iterations, counter)
	}
	if m.Held() {
		t.Fatal("mutex still held after all callers finished")
	}
}

func TestWaiterRegistrationCleanedUp(t *testing.T) {
	m := New(WithTimeout(30 * time.Millisecond))
	if err := m.Lock(); err != nil {
		t.Fatalf("lock: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Lock()
		}()
	}
	wg.Wait()

	if n := m.Waiters(); n != 0 {
		t.Fatalf("expected 0 registered waiters after timeouts, got %d", n)
	}
	m.Unlock()
}

func TestUnlockOfUnlockedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New().Unlock()
}

func TestWithReleasesOnError(t *testing.T) {
	m := New()
	wantErr := context.DeadlineExceeded
	if err := m.With(func() error { return wantErr }); err != wantErr {
		t.Fatalf("expected fn error back, got %v", err)
	}
	if m.Held() {
		t.Fatal("mutex still held after With returned")
	}
}

func TestStatsCountContention(t *testing.T) {
	m := New()
	if err := m.Lock(); err != nil {
		t.Fatalf("lock: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.Lock(); err != nil {
			t.Errorf("contended lock: %v", err)
			return
		}
		m.Unlock()
	}()
	time.Sleep(20 * time.Millisecond)
	m.Unlock()
	<-done

	stats := m.Stats()
	if stats.Acquisitions != 2 {
		t.Fatalf("expected 2 acquisitions, got %d", stats.Acquisitions)
	}
	if stats.Contentions != 1 {
		t.Fatalf("expected 1 contention, got %d", stats.Contentions)
	}
	if stats.TotalWait <= 0 {
		t.Fatal("expected contended wait time to be recorded")
	}
}
