package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ylchen07/ticketq/internal/query"
	"github.com/ylchen07/ticketq/internal/refresh"
	"github.com/ylchen07/ticketq/internal/ticket"
)

// Coordinator is the cache and refresh surface the tools need.
// *refresh.Coordinator satisfies it.
type Coordinator interface {
	Obtain(ctx context.Context, force bool) refresh.Result
	Refresh(ctx context.Context) ([]ticket.Ticket, error)
	Inspect(ctx context.Context) (*refresh.Snapshot, error)
}

// Dependencies bundles the services required for MCP server construction.
type Dependencies struct {
	Coordinator Coordinator
	Dispatcher  *query.Dispatcher
	Logger      *slog.Logger
	Version     string
}

// NewServer builds an MCP server with the ticket tools registered.
func NewServer(deps Dependencies) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	srv := server.NewMCPServer(
		"ticketq",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithInstructions("Query a locally cached snapshot of Jira tickets. Directives: /new [N], /hours N, /critical, /rtd; anything else is a fuzzy search."),
		server.WithRecovery(),
	)

	if deps.Coordinator != nil && deps.Dispatcher != nil {
		NewTicketTools(srv, deps.Coordinator, deps.Dispatcher, deps.Logger)
	}

	return srv
}
