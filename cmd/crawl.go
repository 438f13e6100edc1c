package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jobradar/jobradar/internal/platform"
)

// newCrawlCmd creates the 'crawl' subcommand. It runs one discovery pass
// for a single platform or for all of them and prints the run report.
func newCrawlCmd() *cobra.Command {
	var (
		platformName string
		trigger      string
		all          bool
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one discovery crawl",
		Long: `Walks the result pages of every enabled search on the platform,
recording new job sightings until a stop condition fires: the page or
job budget, repeated duplicate pages, repeated blocks, or repeated
failures.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !all && platformName == "" {
				return errors.New("either --platform or --all is required")
			}

			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			if all {
				reports := appInstance.CrawlAll(cmd.Context(), trigger)
				return printJSON(reports)
			}

			report, err := appInstance.Crawl(cmd.Context(), strings.ToLower(platformName), trigger)
			if err != nil && !errors.Is(err, context.Canceled) {
				// The report still carries the recorded failure.
				if perr := printJSON(report); perr != nil {
					return perr
				}
				return fmt.Errorf("run crawl: %w", err)
			}
			return printJSON(report)
		},
	}

	cmd.Flags().StringVar(&platformName, "platform", "", fmt.Sprintf("platform to crawl (%s)", strings.Join(platform.Names(), ", ")))
	cmd.Flags().StringVar(&trigger, "trigger", "manual", "trigger label recorded on the crawl run")
	cmd.Flags().BoolVar(&all, "all", false, "crawl every registered platform in sequence")

	return cmd
}
