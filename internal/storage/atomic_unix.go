//go:build unix

package storage

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isTransientIO reports whether a syscall failed for a reason worth an
// immediate retry. Everything else (ENOSPC, EACCES, ...) is fatal.
func isTransientIO(err error) bool {
	return errors.Is(err, unix.EINTR) ||
		errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EWOULDBLOCK)
}
