// Package publisher defines the event fanout contract and the payloads
// emitted when runs finish.
package publisher

import (
	"context"
	"time"
)

// Publisher fans out a JSON payload to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// CrawlFinishedEvent is published once per finished crawl run.
type CrawlFinishedEvent struct {
	EventID        string    `json:"event_id"`
	RunID          string    `json:"run_id"`
	Platform       string    `json:"platform"`
	Trigger        string    `json:"trigger"`
	Status         string    `json:"status"`
	PagesFetched   int       `json:"pages_fetched"`
	JobsDiscovered int       `json:"jobs_discovered"`
	FinishedAt     time.Time `json:"finished_at"`
}

// MaintenanceFinishedEvent is published once per finished lifecycle run.
type MaintenanceFinishedEvent struct {
	EventID     string    `json:"event_id"`
	RunID       string    `json:"run_id"`
	Trigger     string    `json:"trigger"`
	Status      string    `json:"status"`
	DryRun      bool      `json:"dry_run"`
	StaleMarked int64     `json:"stale_marked_count"`
	DeletedJobs int64     `json:"deleted_jobs_count"`
	FinishedAt  time.Time `json:"finished_at"`
}
