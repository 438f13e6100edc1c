// Package lifecycle ages job rows out of the active set. Every run is
// gated per platform on a recent healthy crawl, so a broken crawler can
// never cause a mass expiration of jobs that are still live.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/jobradar/jobradar/internal/store"
)

// Action is the per-platform outcome of the health gate.
type Action string

// Gate outcomes. Failed is reserved for processing errors; Decide never
// returns it.
const (
	ActionProcessed          Action = "processed"
	ActionSkippedNoRecentRun Action = "skipped_no_recent_run"
	ActionSkippedUnhealthy   Action = "skipped_unhealthy"
	ActionFailed             Action = "failed"
)

// Decide applies the health gate to a platform's latest crawl run. A nil
// latest means the platform has never been crawled. The returned note
// explains any skip; it is nil when the platform may be processed.
func Decide(latest *store.CrawlRun, now time.Time, maxCrawlAgeHours int) (Action, *string) {
	if latest == nil {
		return ActionSkippedNoRecentRun, note("no crawl runs found")
	}
	if latest.Status != store.CrawlSuccess {
		return ActionSkippedUnhealthy, note(fmt.Sprintf("latest crawl status is %q, expected %q", latest.Status, store.CrawlSuccess))
	}
	if latest.FinishedAt == nil {
		return ActionSkippedUnhealthy, note("latest successful crawl has no finished timestamp")
	}
	age := now.Sub(*latest.FinishedAt)
	maxAge := time.Duration(maxCrawlAgeHours) * time.Hour
	if age > maxAge {
		return ActionSkippedUnhealthy, note(fmt.Sprintf("latest successful crawl is too old (%dh > %dh)", int(age.Hours()), maxCrawlAgeHours))
	}
	return ActionProcessed, nil
}

func note(s string) *string {
	return &s
}
