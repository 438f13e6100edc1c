package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// newWatchdogCmd creates the 'watchdog' subcommand. It finalizes crawl
// runs that died mid-flight and would otherwise stay running forever,
// blocking the lifecycle gate.
func newWatchdogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Reaps crawl runs stuck in running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			reaped, err := appInstance.Watchdog(cmd.Context())
			if err != nil {
				return fmt.Errorf("run watchdog: %w", err)
			}
			if reaped == nil {
				reaped = []uuid.UUID{}
			}
			return printJSON(map[string]any{"reaped_run_ids": reaped})
		},
	}
	return cmd
}
