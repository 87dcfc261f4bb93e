package commands

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ylchen07/ticketq/internal/alfred"
	"github.com/ylchen07/ticketq/internal/refresh"
	"github.com/ylchen07/ticketq/pkg/logging"
)

const (
	notReadyTitle    = "ticketq is not ready"
	notReadySubtitle = "Check the ticketq configuration and logs"
)

// newScheduler starts background refreshes for the query command. Tests
// replace it to avoid spawning processes.
var newScheduler = func(opts *rootOptions, logger *slog.Logger) (refresh.Scheduler, error) {
	return refresh.NewProcessScheduler(refreshArgs(opts), logger)
}

type queryOptions struct {
	root   *rootOptions
	update bool
}

func newQueryCommand(root *rootOptions) *cobra.Command {
	opts := &queryOptions{root: root}
	cmd := &cobra.Command{
		Use:   "query [input...]",
		Short: "Answer a query from the ticket cache",
		Args:  cobra.ArbitraryArgs,
		RunE:  opts.run,
	}
	opts.bindFlags(cmd)
	return cmd
}

func (o *queryOptions) bindFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.update, "update", false, "Refresh the cache synchronously before answering")
}

// run always prints items; setup failures are logged and become a fixed
// status row so the caller sees them instead of an empty list.
func (o *queryOptions) run(cmd *cobra.Command, args []string) error {
	input := strings.TrimSpace(strings.Join(args, " "))
	out := cmd.OutOrStdout()

	a, err := newApp(cmd.Context(), o.root)
	if err != nil {
		logger := logging.NewWithOptions(logging.Options{Level: o.root.logLevel, Output: cmd.ErrOrStderr()})
		return o.notReady(out, logger, err)
	}
	defer a.Close()

	scheduler, err := newScheduler(o.root, a.logger)
	if err != nil {
		return o.notReady(out, a.logger, err)
	}

	coord, err := a.coordinator(scheduler)
	if err != nil {
		return o.notReady(out, a.logger, err)
	}

	res := coord.Obtain(cmd.Context(), o.update)
	a.logger.Debug("query answered",
		slog.String("input", input),
		slog.String("status", res.Status.String()),
		slog.Int("tickets", len(res.Tickets)),
	)
	return alfred.Write(out, a.dispatcher.Respond(input, res))
}

func (o *queryOptions) notReady(out io.Writer, logger *slog.Logger, err error) error {
	logger.Error("query setup failed", slog.Any("error", err))
	return alfred.Write(out, []alfred.Item{alfred.Status(notReadyTitle, notReadySubtitle)})
}

// refreshArgs is the command line of the detached refresh child.
func refreshArgs(opts *rootOptions) []string {
	args := []string{"refresh"}
	if opts.configPath != "" {
		args = append(args, "--config", opts.configPath)
	}
	if opts.logLevel != "" {
		args = append(args, "--log-level", opts.logLevel)
	}
	return args
}
