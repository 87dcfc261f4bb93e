package commands

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	mcpserver "github.com/ylchen07/ticketq/internal/mcp"
	"github.com/ylchen07/ticketq/internal/refresh"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve ticket tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer a.Close()

			// Background refreshes run in-process and are cancelled once the
			// server stops.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			scheduler := refresh.NewGoroutineScheduler(ctx, a.logger)
			coord, err := a.coordinator(scheduler)
			if err != nil {
				return err
			}

			srv := mcpserver.NewServer(mcpserver.Dependencies{
				Coordinator: coord,
				Dispatcher:  a.dispatcher,
				Logger:      a.logger,
				Version:     version,
			})

			a.logger.Info("serving MCP over stdio", slog.String("backend", a.cfg.Cache.Backend))
			err = server.ServeStdio(srv)
			cancel()
			scheduler.Wait()
			if err != nil {
				a.logger.Error("stdio server terminated", slog.Any("error", err))
				return err
			}
			return nil
		},
	}
}
