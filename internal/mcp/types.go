// Package mcp exposes the todo store over the Model Context Protocol.
package mcp

import (
	"context"

	"github.com/todosafe/todosafe/internal/domain"
)

// Service defines the store operations needed by MCP.
// This interface allows for easy mocking in tests.
type Service interface {
	// Tools (actions that may have side effects)
	Add(ctx context.Context, text, dueDate string) (domain.Todo, error)
	SetDone(ctx context.Context, id int, done bool) (domain.Todo, error)
	Delete(ctx context.Context, id int) error
	DeleteDone(ctx context.Context, dryRun *bool) ([]domain.Todo, error)

	// Resources (read-only queries)
	Load(ctx context.Context) ([]domain.Todo, error)
}

// AddInput defines the input parameters for the add tool.
type AddInput struct {
	Text    string `json:"text" jsonschema:"description=Todo text"`
	DueDate string `json:"dueDate,omitempty" jsonschema:"description=Optional due date in YYYY-MM-DD format"`
}

// CompleteInput defines the input parameters for the complete tool.
type CompleteInput struct {
	ID   int  `json:"id" jsonschema:"description=Todo id"`
	Undo bool `json:"undo,omitempty" jsonschema:"description=Mark pending instead of done"`
}

// DeleteInput defines the input parameters for the delete tool.
type DeleteInput struct {
	ID int `json:"id" jsonschema:"description=Todo id"`
}

// ClearDoneInput defines the input parameters for the clear_done tool.
type ClearDoneInput struct {
	DryRun bool `json:"dryRun,omitempty" jsonschema:"description=Report what would be deleted without deleting"`
}

// ToolOutput is the common output structure for tools.
type ToolOutput struct {
	Todos   []domain.Todo `json:"todos,omitempty"`
	Summary string        `json:"summary,omitempty"`
	Error   string        `json:"error,omitempty"`
}
