package filelock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// sidecarInfo is the on-disk payload of a degraded-mode lock file. Other
// processes read it to decide whether the holder is stale.
type sidecarInfo struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
	Hostname   string    `json:"hostname,omitempty"`
}

type sidecarLock struct {
	path string
	pid  int
}

// acquireSidecar emulates an exclusive lock with an O_EXCL-created metadata
// file. The create/inspect/remove cycle is inherently racy, so ownership is
// re-validated by reading the file back after every successful create.
func acquireSidecar(ctx context.Context, target string, opts Options) (*sidecarLock, error) {
	path := target + ".lock.info"
	pid := os.Getpid()
	host, _ := os.Hostname()

	start := time.Now()
	attempts := 0
	for {
		attempts++
		created, err := writeSidecar(path, sidecarInfo{PID: pid, AcquiredAt: time.Now().UTC(), Hostname: host})
		if err != nil {
			return nil, err
		}
		if created {
			// Another process may have raced our removal of a stale file and
			// won the recreate; only trust the lock if the file names us.
			info, readErr := readSidecar(path)
			if readErr == nil && info.PID == pid {
				opts.Logger.Debug("degraded lock acquired",
					"op", "acquire", "path", target,
					"wait_ms", time.Since(start).Milliseconds(), "attempts", attempts)
				return &sidecarLock{path: path, pid: pid}, nil
			}
		} else {
			// Holder exists: reclaim if its process died or the record aged out.
			info, readErr := readSidecar(path)
			stale := false
			switch {
			case readErr != nil:
				// Unreadable or truncated sidecar counts as stale.
				stale = true
			case !processAlive(info.PID):
				stale = true
			case time.Since(info.AcquiredAt) > opts.StaleAfter:
				stale = true
			}
			if stale {
				opts.Logger.Warn("reclaiming stale lock", "path", target, "holder_pid", sidecarPID(info, readErr))
				// Best-effort: another process may remove and recreate first.
				_ = os.Remove(path)
				continue
			}
		}

		elapsed := time.Since(start)
		if elapsed >= opts.Timeout {
			return nil, &TimeoutError{Op: "acquire", Path: target, Elapsed: elapsed, Attempts: attempts}
		}
		if err := sleepInterruptible(ctx, opts.RetryInterval); err != nil {
			return nil, err
		}
	}
}

func (s *sidecarLock) release() error {
	// Only remove the file if it still names us; a reclaiming process may
	// already own a fresh one at the same path.
	info, err := readSidecar(s.path)
	if err == nil && info.PID != s.pid {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release degraded lock: %w", err)
	}
	return nil
}

// writeSidecar attempts an exclusive create. Returns (false, nil) when the
// file already exists.
func writeSidecar(path string, info sidecarInfo) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("create lock sidecar: %w", err)
	}
	data, err := json.Marshal(info)
	if err == nil {
		_, err = f.Write(data)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return false, fmt.Errorf("write lock sidecar: %w", err)
	}
	return true, nil
}

func readSidecar(path string) (sidecarInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sidecarInfo{}, err
	}
	var info sidecarInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return sidecarInfo{}, err
	}
	if info.PID <= 0 {
		return sidecarInfo{}, fmt.Errorf("lock sidecar missing pid")
	}
	return info, nil
}

func sidecarPID(info sidecarInfo, readErr error) any {
	if readErr != nil {
		return "unknown"
	}
	return info.PID
}
