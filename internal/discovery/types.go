package discovery

import (
	"context"
	"time"
)

// Search carries the slice of a search definition the controller needs.
// It is a value copy; the controller never mutates configuration.
type Search struct {
	ID       string
	Name     string
	Platform string
	Keywords string
	Location string
	GeoID    string
	Facets   map[string]string
	// Window is the date-filter code chosen for this run ("" = unbounded).
	Window string
	// RunID is the SearchRun row this walk reports into.
	RunID string
}

// PageRequest identifies one result page to fetch.
type PageRequest struct {
	Search Search
	Offset int
}

// PageResult is the raw outcome of fetching one result page.
type PageResult struct {
	StatusCode int
	Body       string
	FinalURL   string
	Duration   time.Duration
}

// Listing is one job identifier extracted from a result page.
type Listing struct {
	JobID  string
	JobURL string
	Rank   int
}

// Sighting is one de-duplicated discovery of a job within a search run.
type Sighting struct {
	SearchRunID string
	Platform    string
	JobID       string
	JobURL      string
	Rank        int
	PageOffset  int
	SeenAt      time.Time
}

// PageFetch is the append-only fact recorded for every page attempt,
// blocked or not. It is separate from sightings.
type PageFetch struct {
	SearchRunID string
	PageOffset  int
	StatusCode  int
	ItemCount   int
	NewCount    int
	Blocked     bool
	Error       string
	FetchedAt   time.Time
}

// RunStatus is the terminal status of one search run.
type RunStatus string

// Terminal search-run statuses.
const (
	RunSuccess RunStatus = "success"
	RunBlocked RunStatus = "blocked"
	RunFailed  RunStatus = "failed"
)

// StopReason records which stop condition ended the walk.
type StopReason string

// Stop reasons, in the priority order they are evaluated.
const (
	StopPageBudget     StopReason = "page_budget"
	StopJobBudget      StopReason = "job_budget"
	StopDuplicatePages StopReason = "duplicate_pages"
	StopCircuitBreaker StopReason = "circuit_breaker"
	StopTransportFails StopReason = "transport_failures"
	StopCanceled       StopReason = "canceled"
)

// Outcome summarizes one completed pagination walk.
type Outcome struct {
	Status         RunStatus
	StopReason     StopReason
	PagesFetched   int
	JobsDiscovered int
	Blocked        bool
	Error          string
}

// Fetcher fetches one result page. Implementations are platform-selectable
// (plain HTTP or browser-rendered).
type Fetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (PageResult, error)
}

// Extractor pulls job identifiers out of a non-blocked result page.
type Extractor interface {
	Extract(body string) ([]Listing, error)
}

// Sink receives discovery side effects. RecordSighting is called once per
// new identifier per run; RecordPageFetch once per page attempt.
type Sink interface {
	RecordSighting(ctx context.Context, s Sighting) error
	RecordPageFetch(ctx context.Context, f PageFetch) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
