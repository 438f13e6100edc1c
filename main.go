// The main package for the jobradar executable.
//
// Architecture overview:
//   - CLI: cobra subcommands (crawl, maintain, watchdog, serve) share one
//     application container built in the root command's PersistentPreRunE.
//     Machine-readable results go to stdout, logs to stderr.
//   - Discovery: internal/runner fans the platform's enabled searches out
//     under a concurrency cap and drives one budgeted pagination walk per
//     search. Block refusals are classified per platform by data-driven
//     rules; blocked and failed pages are retried at the same offset.
//   - Fetch pipeline: LinkedIn listings come over plain HTTP via the
//     Colly-based fetcher; StepStone and Xing render client-side and go
//     through the Chromedp fetcher with its own parallelism semaphore.
//   - Persistence: pgx-backed stores under internal/storage/postgres keep
//     crawl runs, search runs, page-fetch facts, jobs and lifecycle runs.
//     The schema is ensured at startup.
//   - Lifecycle: internal/lifecycle soft-expires postings that stopped
//     appearing and hard-deletes long-expired ones, gated per platform on
//     a recent healthy crawl. Dry-run previews use the same predicates.
//   - Plumbing: Viper populates config from env/files, zap provides
//     structured logging, Prometheus counters export via /metrics, and a
//     compact Pub/Sub event is published when runs finish.
package main

import (
	"github.com/jobradar/jobradar/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
