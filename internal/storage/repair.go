package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/todosafe/todosafe/internal/domain"
)

// Validate checks the on-disk document against the required shape without
// modifying anything. It returns true for a missing file (nothing to
// validate) and a human-readable reason otherwise.
func (s *Store) Validate() (bool, string) {
	data, err := readFileRetry(s.opts.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, ""
		}
		return false, err.Error()
	}
	if _, err := parseDocument(s.opts.Path, data, s.opts.Logger); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// Repair recovers what it can from a malformed todo file. The corrupt bytes
// are first copied verbatim to a ".recovered" sidecar, then the longest
// prefix of syntactically complete record objects is extracted and written
// back through the normal atomic save path. Input with no recoverable
// structure yields an empty set, never an error.
func (s *Store) Repair(ctx context.Context) ([]domain.Todo, error) {
	var recovered []domain.Todo
	err := s.lockContext(ctx, func() error {
		data, err := readFileRetry(s.opts.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				recovered = []domain.Todo{}
				return nil
			}
			return err
		}

		// Already valid: nothing to repair.
		if todos, err := parseDocument(s.opts.Path, data, s.opts.Logger); err == nil {
			recovered = todos
			return nil
		}

		// Preserve the original bytes before anything touches the file.
		sidecar := s.opts.Path + ".recovered"
		if err := writeFileAtomic(sidecar, data); err != nil {
			return fmt.Errorf("preserve corrupt file: %w", err)
		}
		s.opts.Logger.Warn("preserved corrupt todo file", "path", s.opts.Path, "sidecar", sidecar)

		recovered = extractRecords(data)
		payload, err := encodeDocument(recovered)
		if err != nil {
			return err
		}
		if err := writeFileAtomic(s.opts.Path, payload); err != nil {
			return err
		}
		s.cache.invalidate()
		s.opts.Logger.Info("repaired todo file",
			"path", s.opts.Path, "recovered_records", len(recovered))
		return nil
	})
	return recovered, err
}

// extractRecords scans for the records array and collects complete record
// objects until the first structural fault. It never returns records that
// are not syntactically present in the source.
func extractRecords(data []byte) []domain.Todo {
	text := string(data)
	start := recordsArrayStart(text)
	if start < 0 {
		return []domain.Todo{}
	}

	todos := []domain.Todo{}
	inString := false
	escaped := false
	depth := 0
	objStart := -1
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				objStart = i
			}
			depth++
		case '}':
			depth--
			if depth < 0 {
				return todos
			}
			if depth == 0 && objStart >= 0 {
				todo, ok := decodeRecord(text[objStart : i+1])
				if !ok {
					return todos
				}
				todos = append(todos, todo)
				objStart = -1
			}
		case ']':
			if depth == 0 {
				return todos
			}
		}
	}
	// Truncated input: whatever closed cleanly before the cut survives.
	return todos
}

// recordsArrayStart locates the first byte inside the records array, for
// either document shape. -1 means no array structure at all.
func recordsArrayStart(text string) int {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	offset := len(text) - len(trimmed)
	if strings.HasPrefix(trimmed, "[") {
		return offset + 1
	}
	key := strings.Index(text, `"records"`)
	if key < 0 {
		return -1
	}
	bracket := strings.Index(text[key:], "[")
	if bracket < 0 {
		return -1
	}
	return key + bracket + 1
}

func decodeRecord(fragment string) (domain.Todo, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(fragment), &obj); err != nil {
		return domain.Todo{}, false
	}
	todo, err := domain.FromMap(obj)
	if err != nil {
		return domain.Todo{}, false
	}
	return todo, true
}
