package postgres

import (
	"context"
	"fmt"
)

// schemaStatements is the idempotent DDL for the jobradar schema. Statements
// run in order; each must be safe to re-run against an existing database.
var schemaStatements = []string{
	`create schema if not exists jobradar`,

	`create table if not exists jobradar.crawl_runs (
		id uuid primary key default gen_random_uuid(),
		platform text not null,
		trigger text not null,
		status text not null default 'running',
		started_at timestamptz not null default now(),
		finished_at timestamptz,
		stats jsonb not null default '{}'::jsonb,
		error text
	)`,

	`create table if not exists jobradar.search_definitions (
		id uuid primary key default gen_random_uuid(),
		platform text not null,
		name text not null,
		keywords text not null default '',
		location_text text not null default '',
		geo_id text not null default '',
		facets jsonb not null default '{}'::jsonb,
		date_window text not null default '',
		enabled boolean not null default true,
		unique (platform, name)
	)`,

	`create table if not exists jobradar.search_runs (
		id uuid primary key default gen_random_uuid(),
		crawl_run_id uuid not null references jobradar.crawl_runs(id),
		search_definition_id uuid not null references jobradar.search_definitions(id),
		status text not null default 'running',
		pages_fetched integer not null default 0,
		jobs_discovered integer not null default 0,
		blocked boolean not null default false,
		started_at timestamptz not null default now(),
		finished_at timestamptz,
		error text,
		unique (crawl_run_id, search_definition_id)
	)`,

	`create table if not exists jobradar.page_fetches (
		id bigint generated always as identity primary key,
		search_run_id uuid not null references jobradar.search_runs(id),
		page_offset integer not null,
		status_code integer not null default 0,
		item_count integer not null default 0,
		new_count integer not null default 0,
		blocked boolean not null default false,
		error text,
		fetched_at timestamptz not null default now()
	)`,

	`create table if not exists jobradar.jobs (
		platform text not null,
		job_id text not null,
		job_url text not null,
		first_seen_at timestamptz not null,
		last_seen_at timestamptz not null,
		last_seen_search_run_id uuid,
		is_active boolean not null default true,
		stale_since_at timestamptz,
		expired_at timestamptz,
		expire_reason text,
		primary key (platform, job_id)
	)`,

	`create table if not exists jobradar.job_search_hits (
		search_run_id uuid not null references jobradar.search_runs(id),
		platform text not null,
		job_id text not null,
		rank integer not null default 0,
		page_offset integer not null default 0,
		scraped_at timestamptz not null,
		primary key (search_run_id, job_id)
	)`,

	`create table if not exists jobradar.job_details (
		platform text not null,
		job_id text not null,
		detail jsonb not null default '{}'::jsonb,
		fetched_at timestamptz not null default now(),
		primary key (platform, job_id)
	)`,

	`create table if not exists jobradar.lifecycle_runs (
		id uuid primary key default gen_random_uuid(),
		trigger text not null,
		status text not null default 'running',
		stale_after_days integer not null,
		hard_delete_after_days integer not null,
		max_crawl_age_hours integer not null,
		dry_run boolean not null default false,
		started_at timestamptz not null default now(),
		finished_at timestamptz,
		summary jsonb not null default '{}'::jsonb,
		error text
	)`,

	`create table if not exists jobradar.lifecycle_platform_stats (
		run_id uuid not null references jobradar.lifecycle_runs(id) on delete cascade,
		platform text not null,
		action_status text not null,
		latest_crawl_run_id uuid,
		latest_crawl_status text,
		latest_crawl_finished_at timestamptz,
		stale_marked_count bigint not null default 0,
		hard_delete_candidate_count bigint not null default 0,
		deleted_hits_count bigint not null default 0,
		deleted_details_count bigint not null default 0,
		deleted_jobs_count bigint not null default 0,
		note text,
		primary key (run_id, platform)
	)`,

	`create index if not exists idx_crawl_runs_platform_started
		on jobradar.crawl_runs(platform, started_at desc)`,
	`create index if not exists idx_search_runs_definition
		on jobradar.search_runs(search_definition_id, finished_at desc)`,
	`create index if not exists idx_jobs_active_last_seen
		on jobradar.jobs(platform, is_active, last_seen_at desc)`,
	`create index if not exists idx_page_fetches_search_run
		on jobradar.page_fetches(search_run_id)`,
	`create index if not exists idx_lifecycle_runs_started
		on jobradar.lifecycle_runs(started_at desc)`,
}

// EnsureSchema applies the schema statements in order.
func EnsureSchema(ctx context.Context, db DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
