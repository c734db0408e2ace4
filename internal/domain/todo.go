// Package domain holds the todo record model shared by storage, CLI, and MCP.
package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dueDatePattern rejects near-miss formats (2024/01/02, full datetimes)
// before the calendar check.
var dueDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Todo is a single todo record. All timestamps are UTC ISO 8601 strings,
// matching the on-disk JSON schema.
type Todo struct {
	ID        int    `json:"id"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
	DueDate   string `json:"due_date,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// New creates a todo with timestamps set to now.
func New(id int, text string) (Todo, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Todo{}, fmt.Errorf("todo text cannot be empty")
	}
	now := nowISO()
	return Todo{ID: id, Text: text, CreatedAt: now, UpdatedAt: now}, nil
}

// MarkDone marks the todo as completed.
func (t *Todo) MarkDone() {
	t.Done = true
	t.UpdatedAt = nowISO()
}

// MarkUndone marks the todo as pending again.
func (t *Todo) MarkUndone() {
	t.Done = false
	t.UpdatedAt = nowISO()
}

// Rename replaces the todo text. Whitespace-only text is rejected.
func (t *Todo) Rename(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("todo text cannot be empty")
	}
	t.Text = text
	t.UpdatedAt = nowISO()
	return nil
}

// SetDueDate sets the due date. Only YYYY-MM-DD calendar dates are accepted;
// an empty string clears the field.
func (t *Todo) SetDueDate(date string) error {
	if date != "" {
		if err := validateDueDate(date); err != nil {
			return err
		}
	}
	t.DueDate = date
	t.UpdatedAt = nowISO()
	return nil
}

// IsOverdue reports whether the todo has a past due date and is not done.
// Unparseable due dates are treated as not overdue.
func (t *Todo) IsOverdue() bool {
	if t.DueDate == "" || t.Done {
		return false
	}
	due, err := time.Parse("2006-01-02", t.DueDate)
	if err != nil {
		return false
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	return due.Before(today)
}

// FromMap builds a Todo from a decoded JSON object, reporting the specific
// offending field rather than a generic parse failure.
func FromMap(data map[string]any) (Todo, error) {
	rawID, ok := data["id"]
	if !ok {
		return Todo{}, &FieldError{Field: "id", Reason: "missing required field"}
	}
	id, err := coerceID(rawID)
	if err != nil {
		return Todo{}, &FieldError{Field: "id", Reason: err.Error()}
	}

	rawText, ok := data["text"]
	if !ok {
		return Todo{}, &FieldError{Field: "text", Reason: "missing required field"}
	}
	text, ok := rawText.(string)
	if !ok {
		return Todo{}, &FieldError{Field: "text", Reason: fmt.Sprintf("must be a string, got %T", rawText)}
	}

	done, err := coerceDone(data["done"])
	if err != nil {
		return Todo{}, &FieldError{Field: "done", Reason: err.Error()}
	}

	due := ""
	if rawDue, ok := data["due_date"]; ok && rawDue != nil && rawDue != "" {
		s, ok := rawDue.(string)
		if !ok {
			return Todo{}, &FieldError{Field: "due_date", Reason: fmt.Sprintf("must be a string, got %T", rawDue)}
		}
		if err := validateDueDate(s); err != nil {
			return Todo{}, &FieldError{Field: "due_date", Reason: err.Error()}
		}
		due = s
	}

	return Todo{
		ID:        id,
		Text:      text,
		Done:      done,
		DueDate:   due,
		CreatedAt: stringOr(data["created_at"]),
		UpdatedAt: stringOr(data["updated_at"]),
	}, nil
}

// NextID returns 1 + the highest id present, or 1 for an empty list.
// IDs are never reused even when the list is non-contiguous.
func NextID(todos []Todo) int {
	next := 1
	for _, t := range todos {
		if t.ID >= next {
			next = t.ID + 1
		}
	}
	return next
}

// FieldError reports a schema violation on a specific record field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid todo field %q: %s", e.Field, e.Reason)
}

func coerceID(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("must be an integer, got %v", n)
		}
		return int(n), nil
	case int:
		return n, nil
	case string:
		id, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("must be an integer, got %q", n)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("must be an integer, got %T", v)
	}
}

// coerceDone accepts true/false and 0/1; anything else is rejected so that
// corrupted values surface instead of silently reading as false.
func coerceDone(v any) (bool, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	case float64:
		if b == 0 {
			return false, nil
		}
		if b == 1 {
			return true, nil
		}
		return false, fmt.Errorf("must be a boolean or 0/1, got %v", b)
	default:
		return false, fmt.Errorf("must be a boolean or 0/1, got %T", v)
	}
}

func validateDueDate(date string) error {
	if !dueDatePattern.MatchString(date) {
		return fmt.Errorf("invalid date format %q, expected YYYY-MM-DD", date)
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date %q", date)
	}
	return nil
}

func stringOr(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
