package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunLedger records crawl runs, search runs and page-fetch facts, and
// answers the history questions the window policy and health gate ask.
type RunLedger interface {
	CreateCrawlRun(ctx context.Context, platform, trigger string) (uuid.UUID, error)
	// FinishCrawlRun is the run's single terminal write.
	FinishCrawlRun(ctx context.Context, id uuid.UUID, status CrawlRunStatus, stats json.RawMessage, errText *string) error
	// LatestCrawlRun returns the most recent run for the platform whose
	// discovery phase was not explicitly skipped. ErrNotFound when none.
	LatestCrawlRun(ctx context.Context, platform string) (CrawlRun, error)

	ListEnabledSearches(ctx context.Context, platform string) ([]SearchDefinition, error)

	// EnsureSearchRun creates the (crawl_run, search_definition) row, or
	// returns the existing one: re-entrant calls within the same run must
	// reuse the row, never duplicate it.
	EnsureSearchRun(ctx context.Context, crawlRunID, searchDefinitionID uuid.UUID) (uuid.UUID, error)
	FinishSearchRun(ctx context.Context, id uuid.UUID, status SearchRunStatus, pagesFetched, jobsDiscovered int, blocked bool, errText *string) error
	SearchHistory(ctx context.Context, searchDefinitionID uuid.UUID) (RunHistory, error)

	RecordPageFetch(ctx context.Context, f PageFetch) error

	// FailRunningSearchRuns forcibly finalizes any search run of the crawl
	// run still marked running; used when a process dies mid-flight.
	FailRunningSearchRuns(ctx context.Context, crawlRunID uuid.UUID, reason string) (int64, error)
	// FailStaleCrawlRuns finds crawl runs stuck in running past the
	// staleness threshold and finalizes them (and their search runs) as
	// failed. Returns the run IDs it touched.
	FailStaleCrawlRuns(ctx context.Context, olderThan time.Duration, reason string) ([]uuid.UUID, error)

	GetCrawlRun(ctx context.Context, id uuid.UUID) (CrawlRun, error)
	ListCrawlRuns(ctx context.Context, platform string, limit, offset int) ([]CrawlRun, error)
	ListSearchRuns(ctx context.Context, crawlRunID uuid.UUID) ([]SearchRun, error)
}

// JobStore owns all Job row writes plus the search-hit and detail rows that
// hang off a job. The count and apply pairs evaluate the exact same
// predicate so a dry-run preview is trustworthy.
type JobStore interface {
	Upsert(ctx context.Context, s JobSighting) error

	CountSoftExpireCandidates(ctx context.Context, platform string, staleAfterDays int) (int64, error)
	ApplySoftExpire(ctx context.Context, platform string, staleAfterDays int) (int64, error)

	CountHardDeleteCandidates(ctx context.Context, platform string, hardDeleteAfterDays int) (int64, error)
	CountHitsForHardDelete(ctx context.Context, platform string, hardDeleteAfterDays int) (int64, error)
	CountDetailsForHardDelete(ctx context.Context, platform string, hardDeleteAfterDays int) (int64, error)
	// ApplyHardDelete removes the expired jobs together with their search
	// hits and detail rows in a single transaction: a failure mid-cascade
	// must never leave a surviving job stripped of its history.
	ApplyHardDelete(ctx context.Context, platform string, hardDeleteAfterDays int) (HardDeleteCounts, error)

	// ListDetailCandidates selects jobs whose detail row is missing or older
	// than the staleness window, for the detail-fetch catchup pass.
	ListDetailCandidates(ctx context.Context, platform string, stalenessDays, limit int) ([]Job, error)

	ListJobs(ctx context.Context, platform string, activeOnly bool, limit, offset int) ([]Job, error)
}

// MaintenanceLedger records lifecycle runs and their per-platform stats.
type MaintenanceLedger interface {
	CreateRun(ctx context.Context, trigger string, staleAfterDays, hardDeleteAfterDays, maxCrawlAgeHours int, dryRun bool) (uuid.UUID, error)
	UpsertPlatformStats(ctx context.Context, runID uuid.UUID, stats PlatformStats) error
	FinishRun(ctx context.Context, runID uuid.UUID, status string, summary json.RawMessage, errText *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]LifecycleRun, error)
}
