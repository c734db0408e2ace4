package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// backupStamp is UTC with nanoseconds so rapid successive saves still get
// unique, lexically sortable names (FIFO by name equals FIFO by creation).
const backupStamp = "20060102T150405.000000000"

// DefaultBackupCount is the retention limit when Options leaves it unset.
const DefaultBackupCount = 3

// backupName derives a backup path for the primary file.
func backupName(path string, now time.Time) string {
	return fmt.Sprintf("%s.backup.%s", path, now.UTC().Format(backupStamp))
}

// createBackup snapshots the current target before it is overwritten. Called
// only when the target exists; the very first save has no prior state to
// protect. Failures are reported to the caller for logging but must never
// abort the primary save.
func (s *Store) createBackup() (bool, error) {
	if s.opts.BackupCount <= 0 {
		return false, nil
	}
	current, err := readFileRetry(s.opts.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read current file for backup: %w", err)
	}
	name := backupName(s.opts.Path, time.Now())
	if err := writeFileAtomic(name, current); err != nil {
		return false, fmt.Errorf("write backup: %w", err)
	}
	return true, s.pruneBackups()
}

// pruneBackups enforces the retention limit, evicting oldest first.
func (s *Store) pruneBackups() error {
	backups, err := s.Backups()
	if err != nil {
		return err
	}
	// Backups() is newest-first; everything past the limit goes.
	for _, old := range backups[min(len(backups), s.opts.BackupCount):] {
		if err := os.Remove(old); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("prune backup %s: %w", old, err)
		}
		s.opts.Logger.Debug("pruned backup", "path", old)
	}
	return nil
}

// Backups lists existing backup files for this store, newest first.
func (s *Store) Backups() ([]string, error) {
	matches, err := filepath.Glob(s.opts.Path + ".backup.*")
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

// RestoreBackup replaces the primary file with the named backup's content,
// going through the normal atomic save discipline. The name may be a full
// path or the bare file name of one of Backups().
func (s *Store) RestoreBackup(name string) error {
	if filepath.Dir(name) == "." {
		name = filepath.Join(filepath.Dir(s.opts.Path), name)
	}
	if !strings.HasPrefix(filepath.Base(name), filepath.Base(s.opts.Path)+".backup.") {
		return fmt.Errorf("%s is not a backup of %s", name, s.opts.Path)
	}
	return s.lock(func() error {
		data, err := readFileRetry(name)
		if err != nil {
			return fmt.Errorf("read backup: %w", err)
		}
		if err := writeFileAtomic(s.opts.Path, data); err != nil {
			return err
		}
		s.cache.invalidate()
		s.opts.Logger.Info("restored backup", "path", s.opts.Path, "backup", name)
		return nil
	})
}
