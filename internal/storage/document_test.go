package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/todosafe/todosafe/internal/domain"
	"github.com/todosafe/todosafe/internal/logging"
)

func TestParseDocumentLegacyArray(t *testing.T) {
	data := []byte(`[{"id": 1, "text": "first", "done": false}, {"id": 2, "text": "second", "done": true}]`)
	todos, err := parseDocument("t.json", data, logging.Discard())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(todos) != 2 || todos[0].Text != "first" || !todos[1].Done {
		t.Fatalf("unexpected todos: %+v", todos)
	}
}

func TestParseDocumentObjectShape(t *testing.T) {
	data := []byte(`{"records": [{"id": 3, "text": "x"}], "next_id": 4, "metadata": {"checksum": "abc"}}`)
	todos, err := parseDocument("t.json", data, logging.Discard())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(todos) != 1 || todos[0].ID != 3 {
		t.Fatalf("unexpected todos: %+v", todos)
	}
}

func TestParseDocumentUnknownKeyTolerated(t *testing.T) {
	data := []byte(`{"records": [], "future_field": true}`)
	if _, err := parseDocument("t.json", data, logging.Discard()); err != nil {
		t.Fatalf("expected unknown key tolerated: %v", err)
	}
}

func TestParseDocumentErrors(t *testing.T) {
	cases := []struct {
		name  string
		data  string
		field string
	}{
		{"records missing", `{"next_id": 1}`, "records"},
		{"records not array", `{"records": "nope"}`, "records"},
		{"document scalar", `42`, "(document)"},
		{"record scalar", `[42]`, "(record)"},
		{"bad field", `[{"id": 1, "text": 7}]`, "text"},
		{"next_id fractional", `{"records": [], "next_id": 1.5}`, "next_id"},
		{"next_id zero", `{"records": [], "next_id": 0}`, "next_id"},
		{"next_id not above ids", `{"records": [{"id": 5, "text": "x"}], "next_id": 5}`, "next_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseDocument("t.json", []byte(tc.data), logging.Discard())
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
			if se.Field != tc.field {
				t.Fatalf("expected field %q, got %q (%s)", tc.field, se.Field, se.Reason)
			}
		})
	}
}

func TestParseDocumentInvalidJSON(t *testing.T) {
	_, err := parseDocument("t.json", []byte(`{"records": [`), logging.Discard())
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if de.Path != "t.json" {
		t.Fatalf("expected path in error, got %q", de.Path)
	}
}

func TestParseDocumentSizeCap(t *testing.T) {
	big := append([]byte(`[`), bytes.Repeat([]byte(" "), MaxFileSize)...)
	big = append(big, ']')
	_, err := parseDocument("t.json", big, logging.Discard())
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if !strings.Contains(se.Reason, "too large") {
		t.Fatalf("unexpected reason: %s", se.Reason)
	}
}

func TestEncodeDocumentRoundTrip(t *testing.T) {
	in := []domain.Todo{
		{ID: 1, Text: "emoji ✅ and ünïcode", CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z"},
		{ID: 4, Text: "second", Done: true, DueDate: "2026-03-01", CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-02T00:00:00Z"},
	}
	data, err := encodeDocument(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("written document is not JSON: %v", err)
	}
	if doc["next_id"] != float64(5) {
		t.Fatalf("expected next_id 5, got %v", doc["next_id"])
	}
	meta := doc["metadata"].(map[string]any)
	if len(meta["checksum"].(string)) != 64 {
		t.Fatalf("expected sha256 hex checksum, got %v", meta["checksum"])
	}

	out, err := parseDocument("t.json", data, logging.Discard())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d records, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("record %d changed: %+v != %+v", i, out[i], in[i])
		}
	}
}

func TestEncodeDocumentEmpty(t *testing.T) {
	data, err := encodeDocument(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// An empty set is an empty array, not null.
	if !bytes.Contains(data, []byte(`"records": []`)) {
		t.Fatalf("expected empty records array, got %s", data)
	}
	if !bytes.HasSuffix(data, []byte("\n")) {
		t.Fatal("expected trailing newline")
	}
}
