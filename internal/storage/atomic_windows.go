//go:build windows

package storage

import (
	"errors"

	"golang.org/x/sys/windows"
)

// isTransientIO reports whether a syscall failed for a reason worth an
// immediate retry, such as a sharing violation from a concurrent scanner.
func isTransientIO(err error) bool {
	return errors.Is(err, windows.ERROR_SHARING_VIOLATION) ||
		errors.Is(err, windows.ERROR_LOCK_VIOLATION)
}
