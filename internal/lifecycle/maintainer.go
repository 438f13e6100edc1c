package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobradar/jobradar/internal/metrics"
	"github.com/jobradar/jobradar/internal/store"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Options configures one maintenance run.
type Options struct {
	Trigger             string
	Platforms           []string
	StaleAfterDays      int
	HardDeleteAfterDays int
	MaxCrawlAgeHours    int
	// DryRun evaluates every candidate count without writing job rows.
	// The run itself is still recorded.
	DryRun bool
}

// Validate rejects option combinations that would expire jobs before the
// stale window even starts.
func (o Options) Validate() error {
	if o.StaleAfterDays <= 0 {
		return fmt.Errorf("stale_after_days must be positive, got %d", o.StaleAfterDays)
	}
	if o.HardDeleteAfterDays <= o.StaleAfterDays {
		return fmt.Errorf("hard_delete_after_days (%d) must exceed stale_after_days (%d)",
			o.HardDeleteAfterDays, o.StaleAfterDays)
	}
	if o.MaxCrawlAgeHours <= 0 {
		return fmt.Errorf("max_crawl_age_hours must be positive, got %d", o.MaxCrawlAgeHours)
	}
	if len(o.Platforms) == 0 {
		return errors.New("at least one platform required")
	}
	return nil
}

// Settings echoes the thresholds a run was executed with.
type Settings struct {
	StaleAfterDays      int `json:"stale_after_days"`
	HardDeleteAfterDays int `json:"hard_delete_after_days"`
	MaxCrawlAgeHours    int `json:"max_crawl_age_hours"`
}

// Totals aggregates the per-platform counts.
type Totals struct {
	StaleMarked          int64 `json:"stale_marked_count"`
	HardDeleteCandidates int64 `json:"hard_delete_candidate_count"`
	DeletedHits          int64 `json:"deleted_hits_count"`
	DeletedDetails       int64 `json:"deleted_details_count"`
	DeletedJobs          int64 `json:"deleted_jobs_count"`
}

// Summary is the full outcome of one maintenance run.
type Summary struct {
	RunID     uuid.UUID             `json:"run_id"`
	Status    string                `json:"status"`
	Trigger   string                `json:"trigger"`
	DryRun    bool                  `json:"dry_run"`
	Settings  Settings              `json:"settings"`
	Platforms []store.PlatformStats `json:"platforms"`
	Totals    Totals                `json:"totals"`
}

// Maintainer runs the job lifecycle maintenance pass.
type Maintainer struct {
	runs   store.RunLedger
	jobs   store.JobStore
	ledger store.MaintenanceLedger
	clock  Clock
	logger *zap.Logger
}

// NewMaintainer wires a Maintainer.
func NewMaintainer(runs store.RunLedger, jobs store.JobStore, ledger store.MaintenanceLedger, clock Clock, logger *zap.Logger) *Maintainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Maintainer{runs: runs, jobs: jobs, ledger: ledger, clock: clock, logger: logger}
}

// Run executes one maintenance pass across all configured platforms.
// Platforms are isolated: one platform failing is recorded and the rest
// still run. The final status is success when no platform failed, failed
// when all did, partial otherwise.
func (m *Maintainer) Run(ctx context.Context, opts Options) (Summary, error) {
	if err := opts.Validate(); err != nil {
		return Summary{}, err
	}

	runID, err := m.ledger.CreateRun(ctx, opts.Trigger, opts.StaleAfterDays, opts.HardDeleteAfterDays, opts.MaxCrawlAgeHours, opts.DryRun)
	if err != nil {
		return Summary{}, fmt.Errorf("create lifecycle run: %w", err)
	}
	m.logger.Info("lifecycle run started",
		zap.String("run_id", runID.String()),
		zap.String("trigger", opts.Trigger),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("stale_after_days", opts.StaleAfterDays),
		zap.Int("hard_delete_after_days", opts.HardDeleteAfterDays),
	)

	now := m.clock.Now()
	var platforms []store.PlatformStats
	for _, platform := range opts.Platforms {
		stats, perr := m.processPlatform(ctx, platform, now, opts)
		if perr != nil {
			msg := perr.Error()
			stats = store.PlatformStats{
				Platform:     platform,
				ActionStatus: string(ActionFailed),
				Note:         &msg,
			}
			m.logger.Error("platform maintenance failed",
				zap.String("platform", platform), zap.Error(perr))
		}
		if uerr := m.ledger.UpsertPlatformStats(ctx, runID, stats); uerr != nil {
			return Summary{}, m.finishFailed(ctx, runID, opts, fmt.Errorf("record stats for %s: %w", platform, uerr))
		}
		platforms = append(platforms, stats)
		metrics.ObserveLifecycleAction(platform, stats.ActionStatus)
		if !opts.DryRun {
			metrics.ObserveJobsExpired(platform, stats.StaleMarked)
			metrics.ObserveJobsDeleted(platform, stats.DeletedJobs)
		}
		m.logger.Info("platform maintained",
			zap.String("platform", platform),
			zap.String("action_status", stats.ActionStatus),
			zap.Int64("stale_marked", stats.StaleMarked),
			zap.Int64("deleted_jobs", stats.DeletedJobs),
		)
	}

	summary := Summary{
		RunID:   runID,
		Status:  finalStatus(platforms),
		Trigger: opts.Trigger,
		DryRun:  opts.DryRun,
		Settings: Settings{
			StaleAfterDays:      opts.StaleAfterDays,
			HardDeleteAfterDays: opts.HardDeleteAfterDays,
			MaxCrawlAgeHours:    opts.MaxCrawlAgeHours,
		},
		Platforms: platforms,
		Totals:    sumTotals(platforms),
	}

	raw, err := json.Marshal(summary)
	if err != nil {
		return Summary{}, fmt.Errorf("encode summary: %w", err)
	}
	if err := m.ledger.FinishRun(ctx, runID, summary.Status, raw, nil); err != nil {
		return Summary{}, fmt.Errorf("finish lifecycle run: %w", err)
	}
	return summary, nil
}

func (m *Maintainer) processPlatform(ctx context.Context, platform string, now time.Time, opts Options) (store.PlatformStats, error) {
	stats := store.PlatformStats{Platform: platform, ActionStatus: string(ActionFailed)}

	var latest *store.CrawlRun
	run, err := m.runs.LatestCrawlRun(ctx, platform)
	switch {
	case err == nil:
		latest = &run
		stats.LatestCrawlRunID = &run.ID
		status := string(run.Status)
		stats.LatestCrawlStatus = &status
		stats.LatestCrawlFinishedAt = run.FinishedAt
	case errors.Is(err, store.ErrNotFound):
		// gate handles the no-runs case
	default:
		return stats, fmt.Errorf("latest crawl run: %w", err)
	}

	action, gateNote := Decide(latest, now, opts.MaxCrawlAgeHours)
	stats.ActionStatus = string(action)
	stats.Note = gateNote
	if action != ActionProcessed {
		return stats, nil
	}

	if opts.DryRun {
		return m.previewPlatform(ctx, stats, platform, opts)
	}

	if stats.StaleMarked, err = m.jobs.ApplySoftExpire(ctx, platform, opts.StaleAfterDays); err != nil {
		return stats, fmt.Errorf("soft expire: %w", err)
	}
	if stats.HardDeleteCandidates, err = m.jobs.CountHardDeleteCandidates(ctx, platform, opts.HardDeleteAfterDays); err != nil {
		return stats, fmt.Errorf("count hard-delete candidates: %w", err)
	}
	deleted, err := m.jobs.ApplyHardDelete(ctx, platform, opts.HardDeleteAfterDays)
	if err != nil {
		return stats, fmt.Errorf("hard delete: %w", err)
	}
	stats.DeletedHits = deleted.Hits
	stats.DeletedDetails = deleted.Details
	stats.DeletedJobs = deleted.Jobs
	return stats, nil
}

// previewPlatform computes the same counts a real pass would, through the
// identical predicates, without writing anything.
func (m *Maintainer) previewPlatform(ctx context.Context, stats store.PlatformStats, platform string, opts Options) (store.PlatformStats, error) {
	var err error
	if stats.StaleMarked, err = m.jobs.CountSoftExpireCandidates(ctx, platform, opts.StaleAfterDays); err != nil {
		return stats, fmt.Errorf("count soft-expire candidates: %w", err)
	}
	if stats.HardDeleteCandidates, err = m.jobs.CountHardDeleteCandidates(ctx, platform, opts.HardDeleteAfterDays); err != nil {
		return stats, fmt.Errorf("count hard-delete candidates: %w", err)
	}
	if stats.DeletedHits, err = m.jobs.CountHitsForHardDelete(ctx, platform, opts.HardDeleteAfterDays); err != nil {
		return stats, fmt.Errorf("count search hits: %w", err)
	}
	if stats.DeletedDetails, err = m.jobs.CountDetailsForHardDelete(ctx, platform, opts.HardDeleteAfterDays); err != nil {
		return stats, fmt.Errorf("count details: %w", err)
	}
	stats.DeletedJobs = stats.HardDeleteCandidates
	return stats, nil
}

func (m *Maintainer) finishFailed(ctx context.Context, runID uuid.UUID, opts Options, cause error) error {
	summary := Summary{
		RunID:   runID,
		Status:  "failed",
		Trigger: opts.Trigger,
		DryRun:  opts.DryRun,
		Settings: Settings{
			StaleAfterDays:      opts.StaleAfterDays,
			HardDeleteAfterDays: opts.HardDeleteAfterDays,
			MaxCrawlAgeHours:    opts.MaxCrawlAgeHours,
		},
	}
	raw, _ := json.Marshal(summary)
	msg := cause.Error()
	if err := m.ledger.FinishRun(ctx, runID, "failed", raw, &msg); err != nil {
		m.logger.Error("failed to finalize lifecycle run", zap.Error(err))
	}
	return cause
}

func finalStatus(platforms []store.PlatformStats) string {
	failed := 0
	for _, p := range platforms {
		if p.ActionStatus == string(ActionFailed) {
			failed++
		}
	}
	switch {
	case failed == 0:
		return "success"
	case failed == len(platforms):
		return "failed"
	default:
		return "partial"
	}
}

func sumTotals(platforms []store.PlatformStats) Totals {
	var t Totals
	for _, p := range platforms {
		t.StaleMarked += p.StaleMarked
		t.HardDeleteCandidates += p.HardDeleteCandidates
		t.DeletedHits += p.DeletedHits
		t.DeletedDetails += p.DeletedDetails
		t.DeletedJobs += p.DeletedJobs
	}
	return t
}
