//go:build windows

package filelock

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/windows"
)

// lockRange records the byte range locked at acquire time. The same range
// must be handed to UnlockFileEx: recomputing it after the file has grown
// corrupts the unlock request.
type lockRange struct {
	low  uint32
	high uint32
}

// tryLockFile requests an exclusive lock covering the file's current length
// (minimum one byte so empty files are still lockable). The file offset is
// reset to the start of the range before the call.
func tryLockFile(f *os.File) (lockRange, error) {
	fi, err := f.Stat()
	if err != nil {
		return lockRange{}, err
	}
	size := fi.Size()
	if size < 1 {
		size = 1
	}
	rng := lockRange{
		low:  uint32(size & 0xFFFFFFFF),
		high: uint32(size >> 32),
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return lockRange{}, err
	}
	ol := new(windows.Overlapped)
	err = windows.LockFileEx(
		windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, rng.low, rng.high, ol,
	)
	if err != nil {
		return lockRange{}, err
	}
	return rng, nil
}

// unlockFile releases exactly the range cached at acquire time.
func unlockFile(f *os.File, rng lockRange) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, rng.low, rng.high, ol)
}

func isContention(err error) bool {
	return errors.Is(err, windows.ERROR_LOCK_VIOLATION) ||
		errors.Is(err, windows.ERROR_SHARING_VIOLATION)
}

func isLockUnsupported(err error) bool {
	return errors.Is(err, windows.ERROR_INVALID_FUNCTION) ||
		errors.Is(err, windows.ERROR_NOT_SUPPORTED)
}
