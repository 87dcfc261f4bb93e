package main

import (
	"fmt"
	"os"

	"github.com/ylchen07/ticketq/cmd/ticketq/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ticketq:", err)
		os.Exit(1)
	}
}
