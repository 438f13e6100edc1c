package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// CrawlRunStatus is the lifecycle state of one crawl run.
type CrawlRunStatus string

// Crawl-run statuses. A run is created running and finished exactly once.
const (
	CrawlRunning CrawlRunStatus = "running"
	CrawlSuccess CrawlRunStatus = "success"
	CrawlBlocked CrawlRunStatus = "blocked"
	CrawlFailed  CrawlRunStatus = "failed"
)

// SearchRunStatus mirrors CrawlRunStatus at the per-search level.
type SearchRunStatus string

// Search-run statuses.
const (
	SearchRunning SearchRunStatus = "running"
	SearchSuccess SearchRunStatus = "success"
	SearchBlocked SearchRunStatus = "blocked"
	SearchFailed  SearchRunStatus = "failed"
)

// CrawlRun is one invocation of the pipeline for one platform.
type CrawlRun struct {
	ID         uuid.UUID       `json:"id"`
	Platform   string          `json:"platform"`
	Trigger    string          `json:"trigger"`
	Status     CrawlRunStatus  `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Stats      json.RawMessage `json:"stats,omitempty"`
	Error      *string         `json:"error,omitempty"`
}

// SearchDefinition is a named, user-configured query for one platform.
// Owned by configuration sync; read-only to this core.
type SearchDefinition struct {
	ID           uuid.UUID         `json:"id"`
	Platform     string            `json:"platform"`
	Name         string            `json:"name"`
	Keywords     string            `json:"keywords"`
	LocationText string            `json:"location_text"`
	GeoID        string            `json:"geo_id"`
	Facets       map[string]string `json:"facets"`
	// DateWindow is the explicitly configured date filter; "" is the
	// "any time" sentinel that lets the adaptive policy fill in.
	DateWindow string `json:"date_window"`
	Enabled    bool   `json:"enabled"`
}

// SearchRun is one execution of one SearchDefinition within one CrawlRun.
type SearchRun struct {
	ID                 uuid.UUID       `json:"id"`
	CrawlRunID         uuid.UUID       `json:"crawl_run_id"`
	SearchDefinitionID uuid.UUID       `json:"search_definition_id"`
	Status             SearchRunStatus `json:"status"`
	PagesFetched       int             `json:"pages_fetched"`
	JobsDiscovered     int             `json:"jobs_discovered"`
	Blocked            bool            `json:"blocked"`
	StartedAt          time.Time       `json:"started_at"`
	FinishedAt         *time.Time      `json:"finished_at,omitempty"`
	Error              *string         `json:"error,omitempty"`
}

// Job is one posting on one platform. Identity is (platform, job_id).
type Job struct {
	Platform            string     `json:"platform"`
	JobID               string     `json:"job_id"`
	JobURL              string     `json:"job_url"`
	FirstSeenAt         time.Time  `json:"first_seen_at"`
	LastSeenAt          time.Time  `json:"last_seen_at"`
	LastSeenSearchRunID *uuid.UUID `json:"last_seen_search_run_id,omitempty"`
	IsActive            bool       `json:"is_active"`
	StaleSinceAt        *time.Time `json:"stale_since_at,omitempty"`
	ExpiredAt           *time.Time `json:"expired_at,omitempty"`
	ExpireReason        *string    `json:"expire_reason,omitempty"`
}

// PageFetch is the append-only fact row for every page attempt.
type PageFetch struct {
	SearchRunID uuid.UUID `json:"search_run_id"`
	PageOffset  int       `json:"page_offset"`
	StatusCode  int       `json:"status_code"`
	ItemCount   int       `json:"item_count"`
	NewCount    int       `json:"new_count"`
	Blocked     bool      `json:"blocked"`
	Error       string    `json:"error,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// JobSighting carries one de-duplicated discovery into the job store:
// a job upsert plus an insert-or-ignore search hit.
type JobSighting struct {
	SearchRunID uuid.UUID
	Platform    string
	JobID       string
	JobURL      string
	Rank        int
	PageOffset  int
	SeenAt      time.Time
}

// RunHistory summarizes a search definition's past for the window policy.
type RunHistory struct {
	HasFinished           bool
	LastSuccessFinishedAt *time.Time
}

// LifecycleRun is one maintenance invocation across all platforms.
type LifecycleRun struct {
	ID                  uuid.UUID       `json:"id"`
	Trigger             string          `json:"trigger"`
	Status              string          `json:"status"`
	StaleAfterDays      int             `json:"stale_after_days"`
	HardDeleteAfterDays int             `json:"hard_delete_after_days"`
	MaxCrawlAgeHours    int             `json:"max_crawl_age_hours"`
	DryRun              bool            `json:"dry_run"`
	StartedAt           time.Time       `json:"started_at"`
	FinishedAt          *time.Time      `json:"finished_at,omitempty"`
	Summary             json.RawMessage `json:"summary,omitempty"`
	Error               *string         `json:"error,omitempty"`
}

// HardDeleteCounts reports what one hard-delete pass removed.
type HardDeleteCounts struct {
	Hits    int64
	Details int64
	Jobs    int64
}

// PlatformStats is the per-platform outcome row of one lifecycle run.
type PlatformStats struct {
	Platform              string     `json:"platform"`
	ActionStatus          string     `json:"action_status"`
	LatestCrawlRunID      *uuid.UUID `json:"latest_crawl_run_id,omitempty"`
	LatestCrawlStatus     *string    `json:"latest_crawl_status,omitempty"`
	LatestCrawlFinishedAt *time.Time `json:"latest_crawl_finished_at,omitempty"`
	StaleMarked           int64      `json:"stale_marked_count"`
	HardDeleteCandidates  int64      `json:"hard_delete_candidate_count"`
	DeletedHits           int64      `json:"deleted_hits_count"`
	DeletedDetails        int64      `json:"deleted_details_count"`
	DeletedJobs           int64      `json:"deleted_jobs_count"`
	Note                  *string    `json:"note,omitempty"`
}
