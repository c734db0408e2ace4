package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is set at build time.
var Version = "dev"

// Server wraps the todo service with MCP protocol handling.
type Server struct {
	svc Service
}

// New creates a new MCP server wrapping the given service.
func New(svc Service) *Server {
	return &Server{svc: svc}
}

// Run starts the MCP server on stdio and blocks until the context is
// canceled.
func (s *Server) Run(ctx context.Context) error {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "todosafe",
			Version: Version,
		},
		&mcp.ServerOptions{
			Capabilities: &mcp.ServerCapabilities{
				Tools:     &mcp.ToolCapabilities{},
				Resources: &mcp.ResourceCapabilities{},
			},
		},
	)

	s.registerTools(server)
	s.registerResources(server)

	transport := &mcp.StdioTransport{}
	if err := server.Run(ctx, transport); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

// registerTools adds all tool handlers to the server.
func (s *Server) registerTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "add",
		Description: "Add a todo. Takes the todo text and an optional YYYY-MM-DD due date.",
	}, s.handleAdd)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "complete",
		Description: "Mark a todo done by id, or pending again with undo=true.",
	}, s.handleComplete)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete",
		Description: "Delete a single todo by id.",
	}, s.handleDelete)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_done",
		Description: "Delete all completed todos. Use dryRun=true to preview what would be removed.",
	}, s.handleClearDone)
}

// registerResources adds all resource handlers to the server.
func (s *Server) registerResources(server *mcp.Server) {
	server.AddResource(&mcp.Resource{
		URI:         "todosafe://todos",
		Name:        "Todo List",
		Description: "The full todo list including completed items",
		MIMEType:    "application/json",
	}, s.handleTodosResource)
}
