package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the fingerprint cache",
	}
	cmd.AddCommand(newCacheSweepCmd())
	return cmd
}

func newCacheSweepCmd() *cobra.Command {
	days := 90

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evict fingerprint cache entries not seen in --days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() { _ = st.Close() }()

			removed, err := st.SweepOlderThanDays(days, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("swept %d fingerprint(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", days, "Retention window in days")
	return cmd
}
