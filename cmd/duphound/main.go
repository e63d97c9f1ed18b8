package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:     "duphound",
		Short:   "Find duplicate, near-duplicate, and redundant files",
		Version: version + " (" + commit + ")",
	}

	root.PersistentFlags().String("db", "", "Path to the duphound state database (default: OS config dir)")
	root.PersistentFlags().Int("workers", 0, "Max parallel workers (default: number of CPUs)")

	root.AddCommand(newScanCmd())
	root.AddCommand(newResumeCmd())
	root.AddCommand(newSessionsCmd())
	root.AddCommand(newCacheCmd())

	if err := root.Execute(); err != nil {
		slog.Error("duphound failed", "error", err)
		return 1
	}
	return 0
}
