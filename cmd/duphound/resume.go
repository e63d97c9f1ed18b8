package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ivoronin/duphound/internal/orchestrator"
	"github.com/ivoronin/duphound/internal/progress"
)

func newResumeCmd() *cobra.Command {
	noProgress := false

	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Continue a paused scan session at its recorded stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, args[0], noProgress)
		},
	}
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the stderr progress bar")
	return cmd
}

func runResume(cmd *cobra.Command, sessionID string, noProgress bool) error {
	st, err := openStore(cmd)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	bar := progress.New(!noProgress)
	handle, err := orchestrator.Resume(sessionID, st, bar.Callbacks())
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigCh; ok {
			handle.Cancel()
		}
	}()
	defer signal.Stop(sigCh)

	sig := <-handle.Done()
	return reportSignal(bar, sig)
}
