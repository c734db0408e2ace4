// Package pathutil validates user-supplied storage paths before any file or
// directory is created for them.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyPath is returned for an empty storage path.
var ErrEmptyPath = errors.New("storage path is empty")

// ErrNullBytes is returned for a path containing NUL bytes, a common path
// traversal vector.
var ErrNullBytes = errors.New("storage path contains null bytes")

// AncestorError reports a path component that exists as a regular file where
// a directory is required (e.g. --db=notes.json/sub/todo.json).
type AncestorError struct {
	Component string
	Path      string
}

func (e *AncestorError) Error() string {
	return fmt.Sprintf("%q exists as a file, not a directory; cannot use %q as a storage path",
		e.Component, e.Path)
}

// ValidateStorePath cleans and vets a todo-file path. Symlinked ancestors are
// resolved so a later mkdir cannot be redirected; a missing path is fine (it
// will be created), but no existing ancestor may be a regular file.
func ValidateStorePath(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if strings.Contains(path, "\x00") {
		return "", ErrNullBytes
	}

	cleaned := filepath.Clean(path)
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", err
	}

	if err := checkAncestors(abs); err != nil {
		return "", err
	}

	// Resolve symlinks on the existing prefix of the path so the storage
	// directory ends up where the validated path says it is. The file itself
	// may not exist yet, so the parent is resolved instead.
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	if realDir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(realDir, filepath.Base(abs)), nil
	}
	return abs, nil
}

// checkAncestors walks every existing parent of path, rejecting non-directory
// components with a specific error instead of a downstream mkdir failure.
func checkAncestors(abs string) error {
	dir := filepath.Dir(abs)
	for {
		fi, err := os.Stat(dir)
		if err == nil {
			if !fi.IsDir() {
				return &AncestorError{Component: dir, Path: abs}
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}
