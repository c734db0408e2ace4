//go:build unix

package filelock

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// lockRange is unused on POSIX: fcntl whole-file locks (Start 0, Len 0) cover
// the file regardless of growth, and unlock names the same zero range.
type lockRange struct{}

// tryLockFile requests an exclusive whole-file record lock without blocking.
func tryLockFile(f *os.File) (lockRange, error) {
	flk := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: int16(io.SeekStart),
		Start:  0,
		Len:    0,
	}
	if err := unix.FcntlFlock(f.Fd(), unix.F_SETLK, &flk); err != nil {
		return lockRange{}, err
	}
	return lockRange{}, nil
}

// unlockFile releases the record lock on the identical range.
func unlockFile(f *os.File, _ lockRange) error {
	flk := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: int16(io.SeekStart),
		Start:  0,
		Len:    0,
	}
	return unix.FcntlFlock(f.Fd(), unix.F_SETLK, &flk)
}

// isContention reports whether the lock is merely held by someone else.
func isContention(err error) bool {
	return errors.Is(err, unix.EACCES) ||
		errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EDEADLK)
}

// isLockUnsupported reports whether the filesystem cannot take fcntl locks
// at all (some network and FUSE filesystems).
func isLockUnsupported(err error) bool {
	return errors.Is(err, unix.ENOLCK) ||
		errors.Is(err, unix.ENOSYS) ||
		errors.Is(err, unix.ENOTSUP) ||
		errors.Is(err, unix.EOPNOTSUPP)
}
