// Package commands implements the ticketq command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCommand builds the command tree. The root command itself answers
// queries so script filters can call the bare binary.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	query := &queryOptions{root: opts}

	cmd := &cobra.Command{
		Use:   "ticketq [query...]",
		Short: "Query a locally cached snapshot of Jira tickets",
		Long: `ticketq answers ticket queries from a local cache and keeps that cache warm
by refreshing it in the background.

Directives: /new [N], /hours N, /critical, /rtd. Anything else is a fuzzy search
over ticket keys and titles. Results are printed as script-filter JSON.`,
		Version: versionString(),
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return query.run(cmd, args)
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration directory or file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log_level (debug, info, warn, error)")
	query.bindFlags(cmd)

	cmd.AddCommand(
		newQueryCommand(opts),
		newRefreshCommand(opts),
		newServeCommand(opts),
		newStatusCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// SetVersionInfo sets the version information for the CLI.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "ticketq", versionString())
		},
	}
}
