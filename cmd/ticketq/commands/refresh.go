package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ylchen07/ticketq/internal/refresh"
)

func newRefreshCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the ticket cache from Jira",
		Long: `Fetch every ticket matching the configured JQL and replace the cache entry.
Exits quietly when another refresh holds the lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer a.Close()

			scheduler := refresh.NewGoroutineScheduler(cmd.Context(), a.logger)
			coord, err := a.coordinator(scheduler)
			if err != nil {
				return err
			}

			tickets, err := coord.Refresh(cmd.Context())
			if err != nil {
				if errors.Is(err, refresh.ErrRefreshInProgress) {
					a.logger.Info("refresh skipped", slog.Any("error", err))
					fmt.Fprintln(cmd.ErrOrStderr(), "refresh already in progress")
					return nil
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cached %d tickets\n", len(tickets))
			return nil
		},
	}
}
