package main

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ivoronin/duphound/internal/filter"
	"github.com/ivoronin/duphound/internal/store"
)

// parseSize parses a human-readable size string into bytes, exactly as the
// teacher's --min-size flag does.
func parseSize(s string) (int64, error) {
	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(bytes), nil
}

// validatePatterns checks include/exclude glob patterns up front, so a typo
// fails the command synchronously instead of silently matching nothing.
func validatePatterns(patterns []string) error {
	return filter.ValidatePatterns(patterns)
}

// openStore resolves --db (falling back to store.DefaultPath) and --workers
// (falling back to runtime.NumCPU), then opens the shared sqlite store.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	dbPath, err := cmd.Flags().GetString("db")
	if err != nil {
		return nil, err
	}
	if dbPath == "" {
		dbPath, err = store.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve default db path: %w", err)
		}
	}

	workers, err := workerCount(cmd)
	if err != nil {
		return nil, err
	}

	return store.Open(dbPath, workers)
}

func workerCount(cmd *cobra.Command) (int, error) {
	workers, err := cmd.Flags().GetInt("workers")
	if err != nil {
		return 0, err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return workers, nil
}

func absRoots(paths []string) ([]string, error) {
	out := make([]string, len(paths))
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve path %q: %w", p, err)
		}
		out[i] = abs
	}
	return out, nil
}
