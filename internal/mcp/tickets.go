package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ylchen07/ticketq/internal/alfred"
	"github.com/ylchen07/ticketq/internal/query"
	"github.com/ylchen07/ticketq/internal/refresh"
)

// TicketTools wires the coordinator and dispatcher into MCP tools.
type TicketTools struct {
	coord      Coordinator
	dispatcher *query.Dispatcher
	logger     *slog.Logger
}

// NewTicketTools registers ticket tools on the server.
func NewTicketTools(s *server.MCPServer, coord Coordinator, dispatcher *query.Dispatcher, logger *slog.Logger) *TicketTools {
	if logger == nil {
		logger = slog.Default()
	}
	tt := &TicketTools{coord: coord, dispatcher: dispatcher, logger: logger}

	s.AddTool(
		mcp.NewTool(
			"tickets.query",
			mcp.WithDescription("Answer a ticket query from the local cache, refreshing it in the background"),
			mcp.WithInputSchema[TicketsQueryArgs](),
			mcp.WithOutputSchema[TicketsQueryResult](),
		),
		mcp.NewTypedToolHandler(tt.handleQuery),
	)

	s.AddTool(
		mcp.NewTool(
			"tickets.refresh",
			mcp.WithDescription("Refresh the ticket cache from Jira and wait for it to finish"),
			mcp.WithInputSchema[TicketsRefreshArgs](),
			mcp.WithOutputSchema[TicketsRefreshResult](),
		),
		mcp.NewTypedToolHandler(tt.handleRefresh),
	)

	s.AddTool(
		mcp.NewTool(
			"tickets.status",
			mcp.WithDescription("Report cache age, ticket count and refresh lock state"),
			mcp.WithInputSchema[TicketsStatusArgs](),
			mcp.WithOutputSchema[refresh.Snapshot](),
		),
		mcp.NewTypedToolHandler(tt.handleStatus),
	)

	return tt
}

// TicketsQueryArgs parameters for a ticket query.
type TicketsQueryArgs struct {
	Query  string `json:"query,omitempty" jsonschema_description:"Free text, or one of /new [N], /hours N, /critical, /rtd. Defaults to /hours 24"`
	Update bool   `json:"update,omitempty" jsonschema_description:"Refresh the cache synchronously before answering"`
}

// TicketsQueryResult response payload.
type TicketsQueryResult struct {
	Status string        `json:"status"`
	Kind   string        `json:"kind,omitempty"`
	Items  []alfred.Item `json:"items"`
}

// TicketsRefreshArgs is empty; refresh takes no parameters.
type TicketsRefreshArgs struct{}

// TicketsRefreshResult reports a completed refresh.
type TicketsRefreshResult struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// TicketsStatusArgs is empty; status takes no parameters.
type TicketsStatusArgs struct{}

func (tt *TicketTools) handleQuery(ctx context.Context, _ mcp.CallToolRequest, args TicketsQueryArgs) (*mcp.CallToolResult, error) {
	res := tt.coord.Obtain(ctx, args.Update)
	items := tt.dispatcher.Respond(args.Query, res)

	response := TicketsQueryResult{Status: res.Status.String(), Items: items}
	if res.Status == refresh.StatusCached {
		response.Kind = string(query.Classify(args.Query, tt.dispatcher.NewDefault).Kind)
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		if item.Arg != "" {
			lines = append(lines, fmt.Sprintf("%s (%s)", item.Title, item.Arg))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", item.Title, item.Subtitle))
	}
	return mcp.NewToolResultStructured(response, strings.Join(lines, "\n")), nil
}

func (tt *TicketTools) handleRefresh(ctx context.Context, _ mcp.CallToolRequest, _ TicketsRefreshArgs) (*mcp.CallToolResult, error) {
	tickets, err := tt.coord.Refresh(ctx)
	if err != nil {
		if errors.Is(err, refresh.ErrRefreshInProgress) {
			return mcp.NewToolResultError("refresh already in progress"), nil
		}
		tt.logger.Error("refresh tool failed", slog.Any("error", err))
		return mcp.NewToolResultErrorFromErr("ticket refresh failed", err), nil
	}

	result := TicketsRefreshResult{
		Message: "Caching data complete",
		Count:   len(tickets),
	}
	fallback := fmt.Sprintf("Found %d results", result.Count)
	return mcp.NewToolResultStructured(result, fallback), nil
}

func (tt *TicketTools) handleStatus(ctx context.Context, _ mcp.CallToolRequest, _ TicketsStatusArgs) (*mcp.CallToolResult, error) {
	snap, err := tt.coord.Inspect(ctx)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("ticket status failed", err), nil
	}

	fallback := fmt.Sprintf("%d tickets cached, locked=%t", snap.Count, snap.Locked)
	if !snap.Cached {
		fallback = "cache is empty"
	}
	return mcp.NewToolResultStructured(*snap, fallback), nil
}
