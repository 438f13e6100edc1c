package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jobradar/jobradar/internal/store"
)

// MaintenanceLedger implements store.MaintenanceLedger on Postgres.
type MaintenanceLedger struct {
	db DB
}

// NewMaintenanceLedger constructs a MaintenanceLedger over the shared pool.
func NewMaintenanceLedger(db DB) *MaintenanceLedger {
	return &MaintenanceLedger{db: db}
}

// CreateRun inserts a running lifecycle-run row and returns its id.
func (l *MaintenanceLedger) CreateRun(
	ctx context.Context,
	trigger string,
	staleAfterDays, hardDeleteAfterDays, maxCrawlAgeHours int,
	dryRun bool,
) (uuid.UUID, error) {
	var id uuid.UUID
	err := l.db.QueryRow(ctx, `
		insert into jobradar.lifecycle_runs
		  (trigger, status, stale_after_days, hard_delete_after_days, max_crawl_age_hours, dry_run)
		values ($1, 'running', $2, $3, $4, $5)
		returning id`,
		trigger, staleAfterDays, hardDeleteAfterDays, maxCrawlAgeHours, dryRun,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create lifecycle run: %w", err)
	}
	return id, nil
}

// UpsertPlatformStats writes one platform's outcome row, replacing any
// earlier write for the same (run, platform).
func (l *MaintenanceLedger) UpsertPlatformStats(ctx context.Context, runID uuid.UUID, stats store.PlatformStats) error {
	_, err := l.db.Exec(ctx, `
		insert into jobradar.lifecycle_platform_stats
		  (run_id, platform, action_status, latest_crawl_run_id, latest_crawl_status,
		   latest_crawl_finished_at, stale_marked_count, hard_delete_candidate_count,
		   deleted_hits_count, deleted_details_count, deleted_jobs_count, note)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		on conflict (run_id, platform) do update set
		  action_status = excluded.action_status,
		  latest_crawl_run_id = excluded.latest_crawl_run_id,
		  latest_crawl_status = excluded.latest_crawl_status,
		  latest_crawl_finished_at = excluded.latest_crawl_finished_at,
		  stale_marked_count = excluded.stale_marked_count,
		  hard_delete_candidate_count = excluded.hard_delete_candidate_count,
		  deleted_hits_count = excluded.deleted_hits_count,
		  deleted_details_count = excluded.deleted_details_count,
		  deleted_jobs_count = excluded.deleted_jobs_count,
		  note = excluded.note`,
		runID, stats.Platform, stats.ActionStatus, stats.LatestCrawlRunID, stats.LatestCrawlStatus,
		stats.LatestCrawlFinishedAt, stats.StaleMarked, stats.HardDeleteCandidates,
		stats.DeletedHits, stats.DeletedDetails, stats.DeletedJobs, stats.Note,
	)
	if err != nil {
		return fmt.Errorf("upsert platform stats for %s: %w", stats.Platform, err)
	}
	return nil
}

// FinishRun performs the lifecycle run's single terminal write.
func (l *MaintenanceLedger) FinishRun(ctx context.Context, runID uuid.UUID, status string, summary json.RawMessage, errText *string) error {
	if len(summary) == 0 {
		summary = json.RawMessage(`{}`)
	}
	_, err := l.db.Exec(ctx, `
		update jobradar.lifecycle_runs
		   set finished_at = now(),
		       status = $1,
		       summary = $2,
		       error = $3
		 where id = $4`,
		status, summary, errText, runID,
	)
	if err != nil {
		return fmt.Errorf("finish lifecycle run: %w", err)
	}
	return nil
}

// ListRuns pages through lifecycle runs, newest first.
func (l *MaintenanceLedger) ListRuns(ctx context.Context, limit, offset int) ([]store.LifecycleRun, error) {
	rows, err := l.db.Query(ctx, `
		select id, trigger, status, stale_after_days, hard_delete_after_days,
		       max_crawl_age_hours, dry_run, started_at, finished_at, summary, error
		  from jobradar.lifecycle_runs
		 order by started_at desc
		 limit $1 offset $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list lifecycle runs: %w", err)
	}
	defer rows.Close()

	var out []store.LifecycleRun
	for rows.Next() {
		var run store.LifecycleRun
		if err := rows.Scan(
			&run.ID,
			&run.Trigger,
			&run.Status,
			&run.StaleAfterDays,
			&run.HardDeleteAfterDays,
			&run.MaxCrawlAgeHours,
			&run.DryRun,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Summary,
			&run.Error,
		); err != nil {
			return nil, fmt.Errorf("scan lifecycle run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list lifecycle runs: %w", err)
	}
	return out, nil
}
