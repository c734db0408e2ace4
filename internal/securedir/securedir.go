// Package securedir creates storage directories with owner-only access and no
// window in which a component exists with wider permissions.
package securedir

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// SecurityError reports that a directory exists but could not be secured and
// policy requires aborting.
type SecurityError struct {
	Path string
	Err  error
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("could not secure directory %s: %v", e.Path, e.Err)
}

func (e *SecurityError) Unwrap() error { return e.Err }

// Ensure creates path and every missing ancestor with owner-only permissions
// applied at creation time, component by component. A component that already
// exists (for example because a racing process created it first) is never
// assumed safe: it must be a directory, and any component this call created
// or raced on has its permissions verified and corrected.
func Ensure(path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve directory path: %w", err)
	}

	for _, dir := range componentsToCreate(abs) {
		created, err := mkdirOwnerOnly(dir)
		if err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
		isLeaf := dir == abs
		if err := verifyOwnerOnly(dir, isLeaf, logger); err != nil {
			return err
		}
		if created {
			logger.Debug("created storage directory", "path", dir)
		}
	}
	return nil
}

// componentsToCreate lists the missing suffix of abs, parents first, plus the
// leaf itself (which is always verified even when it already exists).
func componentsToCreate(abs string) []string {
	var missing []string
	dir := abs
	for {
		fi, err := os.Stat(dir)
		if err == nil {
			if fi.IsDir() {
				break
			}
			// A file where a directory is needed is reported by mkdir below.
			break
		}
		missing = append([]string{dir}, missing...)
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if len(missing) == 0 || missing[len(missing)-1] != abs {
		missing = append(missing, abs)
	}
	return missing
}

// mkdirOwnerOnly creates one directory component with restrictive permissions
// at creation. It returns (false, nil) when the directory already exists.
func mkdirOwnerOnly(dir string) (bool, error) {
	if err := mkdirRestricted(dir); err != nil {
		if errors.Is(err, os.ErrExist) {
			fi, statErr := os.Stat(dir)
			if statErr != nil {
				return false, statErr
			}
			if !fi.IsDir() {
				return false, fmt.Errorf("%s exists and is not a directory", dir)
			}
			return false, nil
		}
		return false, err
	}
	return true, nil
}
