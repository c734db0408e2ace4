package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/todosafe/todosafe/internal/domain"
)

// handleAdd implements the add tool.
func (s *Server) handleAdd(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddInput,
) (*mcp.CallToolResult, ToolOutput, error) {
	todo, err := s.svc.Add(ctx, input.Text, input.DueDate)
	if err != nil {
		return nil, ToolOutput{Error: err.Error()}, nil
	}
	return nil, ToolOutput{
		Todos:   []domain.Todo{todo},
		Summary: fmt.Sprintf("Added todo %d: %s", todo.ID, todo.Text),
	}, nil
}

// handleComplete implements the complete tool.
func (s *Server) handleComplete(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CompleteInput,
) (*mcp.CallToolResult, ToolOutput, error) {
	todo, err := s.svc.SetDone(ctx, input.ID, !input.Undo)
	if err != nil {
		return nil, ToolOutput{Error: err.Error()}, nil
	}
	state := "done"
	if input.Undo {
		state = "pending"
	}
	return nil, ToolOutput{
		Todos:   []domain.Todo{todo},
		Summary: fmt.Sprintf("Marked todo %d %s", todo.ID, state),
	}, nil
}

// handleDelete implements the delete tool.
func (s *Server) handleDelete(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input DeleteInput,
) (*mcp.CallToolResult, ToolOutput, error) {
	if err := s.svc.Delete(ctx, input.ID); err != nil {
		return nil, ToolOutput{Error: err.Error()}, nil
	}
	return nil, ToolOutput{
		Summary: fmt.Sprintf("Deleted todo %d", input.ID),
	}, nil
}

// handleClearDone implements the clear_done tool.
func (s *Server) handleClearDone(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ClearDoneInput,
) (*mcp.CallToolResult, ToolOutput, error) {
	dry := input.DryRun
	removed, err := s.svc.DeleteDone(ctx, &dry)
	if err != nil {
		return nil, ToolOutput{Error: err.Error()}, nil
	}
	verb := "Deleted"
	if dry {
		verb = "Would delete"
	}
	return nil, ToolOutput{
		Todos:   removed,
		Summary: fmt.Sprintf("%s %d completed todo(s)", verb, len(removed)),
	}, nil
}
