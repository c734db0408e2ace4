package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Transient write/read retry bounds. Interrupted or would-block syscalls are
// retried here and never surface to callers unless the attempts exhaust.
const (
	maxIORetries   = 3
	ioRetryBackoff = 10 * time.Millisecond
)

// writeFileAtomic writes data to path via a same-directory temp file and an
// atomic replace. The temp name carries a random component and is opened with
// O_EXCL, so a pre-planted file or symlink at the name fails the open instead
// of redirecting the write. Permissions are applied to the descriptor before
// the first byte is written. Every failure path removes the temp file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), randomSuffix()))

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if err := writeAll(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	// The descriptor must be closed before the replace: an open file cannot
	// be renamed over on Windows.
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	if err := syncDir(dir); err != nil {
		return err
	}

	// Rename does not reliably carry the temp file's mode everywhere;
	// verify the final file and re-apply if needed.
	if fi, err := os.Stat(path); err == nil && fi.Mode().Perm() != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("restrict permissions on %s: %w", path, err)
		}
	}
	return nil
}

// writeAll writes the full payload, transparently retrying interrupted or
// would-block errors with backoff. Any other error is fatal and immediate.
func writeAll(f *os.File, data []byte) error {
	written := 0
	attempts := 0
	for written < len(data) {
		n, err := f.Write(data[written:])
		written += n
		if err == nil {
			continue
		}
		if !isTransientIO(err) {
			return fmt.Errorf("write temp file: %w", err)
		}
		attempts++
		if attempts > maxIORetries {
			return fmt.Errorf("write temp file: retries exhausted: %w", err)
		}
		time.Sleep(ioRetryBackoff << (attempts - 1))
	}
	return nil
}

// readFileRetry reads the whole file in one operation, retrying transient
// errors the same way writes do.
func readFileRetry(path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxIORetries; attempt++ {
		if attempt > 0 {
			time.Sleep(ioRetryBackoff << (attempt - 1))
		}
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		if !isTransientIO(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("read %s: retries exhausted: %w", path, lastErr)
}

// syncDir flushes directory metadata after a rename. No-op on Windows.
func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, errors.ErrUnsupported) {
		return fmt.Errorf("sync directory: %w", err)
	}
	return nil
}

// randomSuffix is replaced in tests to pin the temp file name.
var randomSuffix = func() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the platform RNG is broken; fall back to
		// a time-derived suffix rather than a fixed, guessable name.
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
