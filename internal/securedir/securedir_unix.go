//go:build unix

package securedir

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// mkdirRestricted creates dir with owner-only mode in the mkdir call itself.
// The umask could widen nothing here since 0700 grants nothing beyond owner.
func mkdirRestricted(dir string) error {
	err := unix.Mkdir(dir, 0o700)
	if err == unix.EEXIST {
		return os.ErrExist
	}
	if err != nil {
		return &os.PathError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}

// verifyOwnerOnly corrects group/other bits on a directory that exists with
// wider permissions, e.g. one created insecurely by a racing process.
func verifyOwnerOnly(dir string, isLeaf bool, logger *slog.Logger) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if fi.Mode().Perm()&0o077 == 0 {
		return nil
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		if isLeaf {
			return &SecurityError{Path: dir, Err: err}
		}
		// An unhealable ancestor owned by someone else is tolerable as long
		// as the storage directory itself ends up protected.
		logger.Warn("could not tighten directory permissions", "path", dir, "err", err)
		return nil
	}
	logger.Warn("tightened insecure directory permissions", "path", dir,
		"previous_mode", fmt.Sprintf("%04o", fi.Mode().Perm()))
	return nil
}
