package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jobradar/jobradar/internal/store"
)

// RunLedger implements store.RunLedger on Postgres.
type RunLedger struct {
	db DB
}

// NewRunLedger constructs a RunLedger over the shared pool.
func NewRunLedger(db DB) *RunLedger {
	return &RunLedger{db: db}
}

// CreateCrawlRun inserts a running crawl-run row and returns its id.
func (l *RunLedger) CreateCrawlRun(ctx context.Context, platform, trigger string) (uuid.UUID, error) {
	var id uuid.UUID
	err := l.db.QueryRow(ctx, `
		insert into jobradar.crawl_runs (platform, trigger, status)
		values ($1, $2, 'running')
		returning id`,
		platform, trigger,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create crawl run: %w", err)
	}
	return id, nil
}

// FinishCrawlRun performs the run's single terminal write.
func (l *RunLedger) FinishCrawlRun(
	ctx context.Context,
	id uuid.UUID,
	status store.CrawlRunStatus,
	stats json.RawMessage,
	errText *string,
) error {
	if len(stats) == 0 {
		stats = json.RawMessage(`{}`)
	}
	_, err := l.db.Exec(ctx, `
		update jobradar.crawl_runs
		   set finished_at = now(),
		       status = $1,
		       stats = $2,
		       error = $3
		 where id = $4`,
		string(status), stats, errText, id,
	)
	if err != nil {
		return fmt.Errorf("finish crawl run: %w", err)
	}
	return nil
}

// LatestCrawlRun returns the platform's most recent run whose discovery
// phase was not explicitly skipped.
func (l *RunLedger) LatestCrawlRun(ctx context.Context, platform string) (store.CrawlRun, error) {
	row := l.db.QueryRow(ctx, `
		select id, platform, trigger, status, started_at, finished_at, stats, error
		  from jobradar.crawl_runs
		 where platform = $1
		   and coalesce(stats->'discovery'->>'status', '') <> 'skipped'
		 order by started_at desc
		 limit 1`,
		platform,
	)
	var run store.CrawlRun
	err := row.Scan(
		&run.ID,
		&run.Platform,
		&run.Trigger,
		&run.Status,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Stats,
		&run.Error,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.CrawlRun{}, store.ErrNotFound
		}
		return store.CrawlRun{}, fmt.Errorf("latest crawl run: %w", err)
	}
	return run, nil
}

// ListEnabledSearches loads the enabled search definitions for one platform.
func (l *RunLedger) ListEnabledSearches(ctx context.Context, platform string) ([]store.SearchDefinition, error) {
	rows, err := l.db.Query(ctx, `
		select id, platform, name, keywords, location_text, geo_id, facets, date_window, enabled
		  from jobradar.search_definitions
		 where platform = $1 and enabled = true
		 order by name asc`,
		platform,
	)
	if err != nil {
		return nil, fmt.Errorf("list enabled searches: %w", err)
	}
	defer rows.Close()

	var out []store.SearchDefinition
	for rows.Next() {
		var (
			def    store.SearchDefinition
			facets []byte
		)
		if err := rows.Scan(
			&def.ID,
			&def.Platform,
			&def.Name,
			&def.Keywords,
			&def.LocationText,
			&def.GeoID,
			&facets,
			&def.DateWindow,
			&def.Enabled,
		); err != nil {
			return nil, fmt.Errorf("scan search definition: %w", err)
		}
		if len(facets) > 0 {
			if err := json.Unmarshal(facets, &def.Facets); err != nil {
				return nil, fmt.Errorf("decode facets for %s: %w", def.Name, err)
			}
		}
		out = append(out, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list enabled searches: %w", err)
	}
	return out, nil
}

// EnsureSearchRun creates or reuses the (crawl_run, search_definition) row.
func (l *RunLedger) EnsureSearchRun(ctx context.Context, crawlRunID, searchDefinitionID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := l.db.QueryRow(ctx, `
		insert into jobradar.search_runs (crawl_run_id, search_definition_id, status)
		values ($1, $2, 'running')
		on conflict (crawl_run_id, search_definition_id)
		do update set crawl_run_id = excluded.crawl_run_id
		returning id`,
		crawlRunID, searchDefinitionID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("ensure search run: %w", err)
	}
	return id, nil
}

// FinishSearchRun finalizes a search run exactly once.
func (l *RunLedger) FinishSearchRun(
	ctx context.Context,
	id uuid.UUID,
	status store.SearchRunStatus,
	pagesFetched, jobsDiscovered int,
	blocked bool,
	errText *string,
) error {
	_, err := l.db.Exec(ctx, `
		update jobradar.search_runs
		   set finished_at = now(),
		       status = $1,
		       pages_fetched = $2,
		       jobs_discovered = $3,
		       blocked = $4,
		       error = $5
		 where id = $6`,
		string(status), pagesFetched, jobsDiscovered, blocked, errText, id,
	)
	if err != nil {
		return fmt.Errorf("finish search run: %w", err)
	}
	return nil
}

// SearchHistory answers the window policy's two questions about a search.
func (l *RunLedger) SearchHistory(ctx context.Context, searchDefinitionID uuid.UUID) (store.RunHistory, error) {
	row := l.db.QueryRow(ctx, `
		select
		  bool_or(finished_at is not null) as has_finished,
		  max(finished_at) filter (
		    where status = 'success' and blocked = false and finished_at is not null
		  ) as last_success_finished_at
		  from jobradar.search_runs
		 where search_definition_id = $1`,
		searchDefinitionID,
	)
	var (
		hasFinished *bool
		lastSuccess *time.Time
	)
	if err := row.Scan(&hasFinished, &lastSuccess); err != nil {
		return store.RunHistory{}, fmt.Errorf("search history: %w", err)
	}
	hist := store.RunHistory{LastSuccessFinishedAt: lastSuccess}
	if hasFinished != nil {
		hist.HasFinished = *hasFinished
	}
	return hist, nil
}

// RecordPageFetch appends one page-fetch fact.
func (l *RunLedger) RecordPageFetch(ctx context.Context, f store.PageFetch) error {
	var errText *string
	if f.Error != "" {
		errText = &f.Error
	}
	_, err := l.db.Exec(ctx, `
		insert into jobradar.page_fetches
		  (search_run_id, page_offset, status_code, item_count, new_count, blocked, error, fetched_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.SearchRunID, f.PageOffset, f.StatusCode, f.ItemCount, f.NewCount, f.Blocked, errText, f.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("record page fetch: %w", err)
	}
	return nil
}

// FailRunningSearchRuns forcibly fails every still-running search run of a
// crawl run.
func (l *RunLedger) FailRunningSearchRuns(ctx context.Context, crawlRunID uuid.UUID, reason string) (int64, error) {
	tag, err := l.db.Exec(ctx, `
		update jobradar.search_runs
		   set status = 'failed',
		       finished_at = now(),
		       error = coalesce(error, $1)
		 where crawl_run_id = $2
		   and status = 'running'`,
		reason, crawlRunID,
	)
	if err != nil {
		return 0, fmt.Errorf("fail running search runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FailStaleCrawlRuns finalizes crawl runs stuck in running past the
// threshold, along with their search runs.
func (l *RunLedger) FailStaleCrawlRuns(ctx context.Context, olderThan time.Duration, reason string) ([]uuid.UUID, error) {
	if olderThan <= 0 {
		return nil, nil
	}
	rows, err := l.db.Query(ctx, `
		select id
		  from jobradar.crawl_runs
		 where status = 'running'
		   and started_at < now() - ($1 || ' minutes')::interval`,
		fmt.Sprintf("%d", int(olderThan.Minutes())),
	)
	if err != nil {
		return nil, fmt.Errorf("find stale crawl runs: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stale crawl run: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find stale crawl runs: %w", err)
	}

	for _, id := range ids {
		if _, err := l.FailRunningSearchRuns(ctx, id, reason); err != nil {
			return ids, err
		}
		errText := reason
		if err := l.FinishCrawlRun(ctx, id, store.CrawlFailed, nil, &errText); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

// GetCrawlRun fetches one crawl run by id.
func (l *RunLedger) GetCrawlRun(ctx context.Context, id uuid.UUID) (store.CrawlRun, error) {
	row := l.db.QueryRow(ctx, `
		select id, platform, trigger, status, started_at, finished_at, stats, error
		  from jobradar.crawl_runs
		 where id = $1`,
		id,
	)
	var run store.CrawlRun
	err := row.Scan(
		&run.ID,
		&run.Platform,
		&run.Trigger,
		&run.Status,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Stats,
		&run.Error,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.CrawlRun{}, store.ErrNotFound
		}
		return store.CrawlRun{}, fmt.Errorf("get crawl run: %w", err)
	}
	return run, nil
}

// ListCrawlRuns pages through crawl runs, optionally filtered by platform.
func (l *RunLedger) ListCrawlRuns(ctx context.Context, platform string, limit, offset int) ([]store.CrawlRun, error) {
	rows, err := l.db.Query(ctx, `
		select id, platform, trigger, status, started_at, finished_at, stats, error
		  from jobradar.crawl_runs
		 where ($1 = '' or platform = $1)
		 order by started_at desc
		 limit $2 offset $3`,
		platform, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list crawl runs: %w", err)
	}
	defer rows.Close()

	var out []store.CrawlRun
	for rows.Next() {
		var run store.CrawlRun
		if err := rows.Scan(
			&run.ID,
			&run.Platform,
			&run.Trigger,
			&run.Status,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Stats,
			&run.Error,
		); err != nil {
			return nil, fmt.Errorf("scan crawl run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list crawl runs: %w", err)
	}
	return out, nil
}

// ListSearchRuns returns all search runs of one crawl run.
func (l *RunLedger) ListSearchRuns(ctx context.Context, crawlRunID uuid.UUID) ([]store.SearchRun, error) {
	rows, err := l.db.Query(ctx, `
		select id, crawl_run_id, search_definition_id, status, pages_fetched,
		       jobs_discovered, blocked, started_at, finished_at, error
		  from jobradar.search_runs
		 where crawl_run_id = $1
		 order by started_at asc`,
		crawlRunID,
	)
	if err != nil {
		return nil, fmt.Errorf("list search runs: %w", err)
	}
	defer rows.Close()

	var out []store.SearchRun
	for rows.Next() {
		var run store.SearchRun
		if err := rows.Scan(
			&run.ID,
			&run.CrawlRunID,
			&run.SearchDefinitionID,
			&run.Status,
			&run.PagesFetched,
			&run.JobsDiscovered,
			&run.Blocked,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Error,
		); err != nil {
			return nil, fmt.Errorf("scan search run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list search runs: %w", err)
	}
	return out, nil
}
