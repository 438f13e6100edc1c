package postgres

import (
	"context"
	"fmt"

	"github.com/jobradar/jobradar/internal/store"
)

// JobStore implements store.JobStore on Postgres.
type JobStore struct {
	db DB
}

// NewJobStore constructs a JobStore over the shared pool.
func NewJobStore(db DB) *JobStore {
	return &JobStore{db: db}
}

// Upsert records one sighting: a reactivating job upsert followed by an
// insert-or-ignore search hit. last_seen_at only ever moves forward, so
// out-of-order sightings cannot roll a job backwards.
func (s *JobStore) Upsert(ctx context.Context, sighting store.JobSighting) error {
	_, err := s.db.Exec(ctx, `
		insert into jobradar.jobs
		  (platform, job_id, job_url, first_seen_at, last_seen_at, last_seen_search_run_id, is_active)
		values ($1, $2, $3, $4, $4, $5, true)
		on conflict (platform, job_id) do update set
		  job_url = excluded.job_url,
		  last_seen_at = greatest(jobradar.jobs.last_seen_at, excluded.last_seen_at),
		  last_seen_search_run_id = excluded.last_seen_search_run_id,
		  is_active = true,
		  stale_since_at = null,
		  expired_at = null,
		  expire_reason = null`,
		sighting.Platform, sighting.JobID, sighting.JobURL, sighting.SeenAt, sighting.SearchRunID,
	)
	if err != nil {
		return fmt.Errorf("upsert job %s/%s: %w", sighting.Platform, sighting.JobID, err)
	}

	_, err = s.db.Exec(ctx, `
		insert into jobradar.job_search_hits
		  (search_run_id, platform, job_id, rank, page_offset, scraped_at)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (search_run_id, job_id) do nothing`,
		sighting.SearchRunID, sighting.Platform, sighting.JobID, sighting.Rank, sighting.PageOffset, sighting.SeenAt,
	)
	if err != nil {
		return fmt.Errorf("record search hit %s/%s: %w", sighting.Platform, sighting.JobID, err)
	}
	return nil
}

// Soft expiration marks active jobs not seen within the window. The count
// and apply variants share one predicate so a dry run previews exactly what
// a real run would touch.

const softExpirePredicate = `
	 where platform = $1
	   and is_active = true
	   and last_seen_at < now() - ($2 || ' days')::interval`

func (s *JobStore) CountSoftExpireCandidates(ctx context.Context, platform string, staleAfterDays int) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`select count(*) from jobradar.jobs`+softExpirePredicate,
		platform, fmt.Sprintf("%d", staleAfterDays),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count soft-expire candidates: %w", err)
	}
	return n, nil
}

func (s *JobStore) ApplySoftExpire(ctx context.Context, platform string, staleAfterDays int) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		update jobradar.jobs
		   set is_active = false,
		       expired_at = now(),
		       expire_reason = 'not_seen_window',
		       stale_since_at = coalesce(stale_since_at, now())`+softExpirePredicate,
		platform, fmt.Sprintf("%d", staleAfterDays),
	)
	if err != nil {
		return 0, fmt.Errorf("apply soft expire: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Hard deletion removes jobs unseen long past the stale window, together
// with their search hits and detail rows.

const hardDeletePredicate = `
	 where platform = $1
	   and last_seen_at < now() - ($2 || ' days')::interval`

const hardDeleteCandidates = `
	select platform, job_id from jobradar.jobs` + hardDeletePredicate

func (s *JobStore) CountHardDeleteCandidates(ctx context.Context, platform string, hardDeleteAfterDays int) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`select count(*) from jobradar.jobs`+hardDeletePredicate,
		platform, fmt.Sprintf("%d", hardDeleteAfterDays),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count hard-delete candidates: %w", err)
	}
	return n, nil
}

func (s *JobStore) CountHitsForHardDelete(ctx context.Context, platform string, hardDeleteAfterDays int) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `
		select count(*)
		  from jobradar.job_search_hits h
		 where (h.platform, h.job_id) in (`+hardDeleteCandidates+`)`,
		platform, fmt.Sprintf("%d", hardDeleteAfterDays),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count hits for hard delete: %w", err)
	}
	return n, nil
}

func (s *JobStore) CountDetailsForHardDelete(ctx context.Context, platform string, hardDeleteAfterDays int) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `
		select count(*)
		  from jobradar.job_details d
		 where (d.platform, d.job_id) in (`+hardDeleteCandidates+`)`,
		platform, fmt.Sprintf("%d", hardDeleteAfterDays),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count details for hard delete: %w", err)
	}
	return n, nil
}

// ApplyHardDelete deletes expired jobs with their hits and details in one
// transaction, children first. Rolling the whole cascade back on any
// failure keeps the append-only hit history attached to surviving jobs.
func (s *JobStore) ApplyHardDelete(ctx context.Context, platform string, hardDeleteAfterDays int) (store.HardDeleteCounts, error) {
	var counts store.HardDeleteCounts

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return counts, fmt.Errorf("begin hard delete: %w", err)
	}
	defer tx.Rollback(ctx)

	days := fmt.Sprintf("%d", hardDeleteAfterDays)

	tag, err := tx.Exec(ctx, `
		delete from jobradar.job_search_hits h
		 where (h.platform, h.job_id) in (`+hardDeleteCandidates+`)`,
		platform, days,
	)
	if err != nil {
		return counts, fmt.Errorf("delete hits for hard delete: %w", err)
	}
	counts.Hits = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		delete from jobradar.job_details d
		 where (d.platform, d.job_id) in (`+hardDeleteCandidates+`)`,
		platform, days,
	)
	if err != nil {
		return counts, fmt.Errorf("delete details for hard delete: %w", err)
	}
	counts.Details = tag.RowsAffected()

	tag, err = tx.Exec(ctx,
		`delete from jobradar.jobs`+hardDeletePredicate,
		platform, days,
	)
	if err != nil {
		return counts, fmt.Errorf("delete jobs for hard delete: %w", err)
	}
	counts.Jobs = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return store.HardDeleteCounts{}, fmt.Errorf("commit hard delete: %w", err)
	}
	return counts, nil
}

// ListDetailCandidates returns active jobs whose detail row is missing or
// older than the staleness window, oldest fetch first.
func (s *JobStore) ListDetailCandidates(ctx context.Context, platform string, stalenessDays, limit int) ([]store.Job, error) {
	rows, err := s.db.Query(ctx, `
		select j.platform, j.job_id, j.job_url, j.first_seen_at, j.last_seen_at,
		       j.last_seen_search_run_id, j.is_active, j.stale_since_at, j.expired_at, j.expire_reason
		  from jobradar.jobs j
		  left join jobradar.job_details d
		    on d.platform = j.platform and d.job_id = j.job_id
		 where j.platform = $1
		   and j.is_active = true
		   and (d.fetched_at is null or d.fetched_at < now() - ($2 || ' days')::interval)
		 order by d.fetched_at asc nulls first, j.last_seen_at desc
		 limit $3`,
		platform, fmt.Sprintf("%d", stalenessDays), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list detail candidates: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListJobs pages through jobs for one platform.
func (s *JobStore) ListJobs(ctx context.Context, platform string, activeOnly bool, limit, offset int) ([]store.Job, error) {
	rows, err := s.db.Query(ctx, `
		select platform, job_id, job_url, first_seen_at, last_seen_at,
		       last_seen_search_run_id, is_active, stale_since_at, expired_at, expire_reason
		  from jobradar.jobs
		 where platform = $1
		   and ($2 = false or is_active = true)
		 order by last_seen_at desc
		 limit $3 offset $4`,
		platform, activeOnly, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanJobs(rows rowScanner) ([]store.Job, error) {
	var out []store.Job
	for rows.Next() {
		var j store.Job
		if err := rows.Scan(
			&j.Platform,
			&j.JobID,
			&j.JobURL,
			&j.FirstSeenAt,
			&j.LastSeenAt,
			&j.LastSeenSearchRunID,
			&j.IsActive,
			&j.StaleSinceAt,
			&j.ExpiredAt,
			&j.ExpireReason,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}
