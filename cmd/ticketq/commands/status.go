package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ylchen07/ticketq/internal/refresh"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

func newStatusCommand(root *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache age, ticket count and lock state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer a.Close()

			coord, err := a.coordinator(refresh.NewGoroutineScheduler(cmd.Context(), a.logger))
			if err != nil {
				return err
			}

			snap, err := coord.Inspect(cmd.Context())
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), output, a.cfg.Cache.Backend, snap)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, yaml or json")
	return cmd
}

func writeStatus(w io.Writer, format, backend string, snap *refresh.Snapshot) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(snap)
	case "text", "":
		writeStatusText(w, backend, snap)
		return nil
	default:
		return fmt.Errorf("commands: unknown output format %q", format)
	}
}

func writeStatusText(w io.Writer, backend string, snap *refresh.Snapshot) {
	cyan.Fprintf(w, "%-9s", "Cache")
	fmt.Fprintf(w, "%s (%s)\n", snap.Key, backend)

	cyan.Fprintf(w, "%-9s", "Tickets")
	if !snap.Cached {
		yellow.Fprintln(w, "none cached")
	} else {
		fmt.Fprintf(w, "%d\n", snap.Count)
	}

	if snap.Cached {
		cyan.Fprintf(w, "%-9s", "Updated")
		when := humanize.RelTime(snap.WrittenAt, snap.CheckedAt, "ago", "from now")
		if snap.Stale {
			yellow.Fprintf(w, "%s (older than %s)\n", when, snap.TTL)
		} else {
			green.Fprintf(w, "%s\n", when)
		}
	}

	cyan.Fprintf(w, "%-9s", "Lock")
	switch {
	case !snap.Locked:
		green.Fprintln(w, "free")
	case snap.LockStale:
		red.Fprintf(w, "abandoned by %s %s ago, reclaimed on next refresh\n", ownerOrUnknown(snap.LockOwner), snap.LockAge.Round(time.Second))
	default:
		yellow.Fprintf(w, "refresh running as %s for %s\n", ownerOrUnknown(snap.LockOwner), snap.LockAge.Round(time.Second))
	}
}

func ownerOrUnknown(owner string) string {
	if owner == "" {
		return "unknown owner"
	}
	return owner
}
