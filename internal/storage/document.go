package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/todosafe/todosafe/internal/domain"
)

// MaxFileSize caps how much of the todo file is accepted. The limit applies
// to the bytes actually read, never to a separately queried file size, so a
// concurrent writer (or attacker) cannot swap content between check and use.
const MaxFileSize = 10 * 1024 * 1024

// knownKeys are the object-shape top-level keys. Anything else is tolerated
// with a warning so newer writers stay readable.
var knownKeys = map[string]bool{
	"records":  true,
	"next_id":  true,
	"metadata": true,
}

// DecodeError reports content that is not valid JSON at all.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid JSON in %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SchemaError reports structurally valid JSON that violates the document
// shape, naming the offending field. Index is -1 for document-level faults.
type SchemaError struct {
	Path   string
	Index  int
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("schema error in %s, record %d, field %q: %s", e.Path, e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("schema error in %s, field %q: %s", e.Path, e.Field, e.Reason)
}

// savedDocument is the object shape written on every save. The legacy bare
// array shape stays readable but is never written back.
type savedDocument struct {
	Records  []domain.Todo `json:"records"`
	NextID   int           `json:"next_id"`
	Metadata *docMetadata  `json:"metadata,omitempty"`
}

type docMetadata struct {
	Checksum string `json:"checksum,omitempty"`
}

// parseDocument decodes and validates either accepted shape, returning the
// records in file order.
func parseDocument(path string, data []byte, logger *slog.Logger) ([]domain.Todo, error) {
	if len(data) > MaxFileSize {
		return nil, &SchemaError{Path: path, Index: -1, Field: "(file)",
			Reason: fmt.Sprintf("file too large: %d bytes exceeds %d byte limit", len(data), MaxFileSize)}
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	switch doc := raw.(type) {
	case []any:
		return parseRecords(path, doc)
	case map[string]any:
		for key := range doc {
			if !knownKeys[key] {
				logger.Warn("ignoring unknown key in todo file", "path", path, "key", key)
			}
		}
		rawRecords, ok := doc["records"]
		if !ok {
			return nil, &SchemaError{Path: path, Index: -1, Field: "records", Reason: "missing required field"}
		}
		list, ok := rawRecords.([]any)
		if !ok {
			return nil, &SchemaError{Path: path, Index: -1, Field: "records",
				Reason: fmt.Sprintf("must be an array, got %T", rawRecords)}
		}
		todos, err := parseRecords(path, list)
		if err != nil {
			return nil, err
		}
		if rawNext, ok := doc["next_id"]; ok {
			if err := validateNextID(path, rawNext, todos); err != nil {
				return nil, err
			}
		}
		return todos, nil
	default:
		return nil, &SchemaError{Path: path, Index: -1, Field: "(document)",
			Reason: fmt.Sprintf("must be an array or object, got %T", raw)}
	}
}

func parseRecords(path string, list []any) ([]domain.Todo, error) {
	todos := make([]domain.Todo, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &SchemaError{Path: path, Index: i, Field: "(record)",
				Reason: fmt.Sprintf("must be an object, got %T", item)}
		}
		todo, err := domain.FromMap(obj)
		if err != nil {
			var fe *domain.FieldError
			if errors.As(err, &fe) {
				return nil, &SchemaError{Path: path, Index: i, Field: fe.Field, Reason: fe.Reason}
			}
			return nil, err
		}
		todos = append(todos, todo)
	}
	return todos, nil
}

func validateNextID(path string, rawNext any, todos []domain.Todo) error {
	next, ok := rawNext.(float64)
	if !ok || next != float64(int(next)) {
		return &SchemaError{Path: path, Index: -1, Field: "next_id",
			Reason: fmt.Sprintf("must be an integer, got %v", rawNext)}
	}
	n := int(next)
	if n < 1 {
		return &SchemaError{Path: path, Index: -1, Field: "next_id",
			Reason: fmt.Sprintf("must be >= 1, got %d", n)}
	}
	for _, t := range todos {
		if t.ID >= n {
			return &SchemaError{Path: path, Index: -1, Field: "next_id",
				Reason: fmt.Sprintf("%d is not greater than existing record id %d", n, t.ID)}
		}
	}
	return nil
}

// encodeDocument serializes records in the object shape with a content
// checksum over the records array.
func encodeDocument(todos []domain.Todo) ([]byte, error) {
	if todos == nil {
		todos = []domain.Todo{}
	}
	recordsJSON, err := json.Marshal(todos)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	sum := sha256.Sum256(recordsJSON)
	doc := savedDocument{
		Records:  todos,
		NextID:   domain.NextID(todos),
		Metadata: &docMetadata{Checksum: hex.EncodeToString(sum[:])},
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return append(data, '\n'), nil
}
