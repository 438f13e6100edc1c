package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newMaintainCmd creates the 'maintain' subcommand. It runs the job
// lifecycle pass: soft-expiring postings that stopped appearing and
// hard-deleting long-expired ones, gated on a recent healthy crawl.
func newMaintainCmd() *cobra.Command {
	var (
		trigger string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Runs one lifecycle maintenance pass",
		Long: `Ages job postings per platform. A platform is only processed when its
latest crawl succeeded recently enough; otherwise the stale data stays
untouched and the skip is recorded. With --dry-run every candidate
count is computed through the same predicates without writing job rows.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			summary, err := appInstance.Maintain(cmd.Context(), appInstance.MaintenanceOptions(trigger, dryRun))
			if err != nil {
				return fmt.Errorf("run maintenance: %w", err)
			}
			return printJSON(summary)
		},
	}

	cmd.Flags().StringVar(&trigger, "trigger", "manual", "trigger label recorded on the lifecycle run")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute candidate counts without writing job rows")

	return cmd
}
