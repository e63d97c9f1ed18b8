package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage persisted scan sessions",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsGCCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all persisted sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() { _ = st.Close() }()

			sessions, err := st.ListSessions()
			if err != nil {
				return err
			}
			for _, s := range sessions {
				fmt.Printf("%s\t%s\t%s\t%.0f%%\t%s\n", s.ID, s.Status, s.Stage, s.Progress, s.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
}

func newSessionsGCCmd() *cobra.Command {
	keepLatest := 20

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete all but the most recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() { _ = st.Close() }()

			removed, err := st.GCSessions(keepLatest)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d session(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().IntVar(&keepLatest, "keep-latest", keepLatest, "Number of most recent sessions to retain")
	return cmd
}
