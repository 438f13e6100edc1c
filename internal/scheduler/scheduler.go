// Package scheduler wires the cron jobs that periodically trigger crawls
// and lifecycle maintenance.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Jobs are the scheduled entry points. Both run with the scheduler's base
// context and must do their own error reporting; cron ticks never abort
// the schedule.
type Jobs struct {
	Crawl     func(ctx context.Context)
	Lifecycle func(ctx context.Context)
}

// Scheduler wraps robfig/cron around the crawl and lifecycle entry points.
type Scheduler struct {
	cron          *cron.Cron
	jobs          Jobs
	crawlSpec     string
	lifecycleSpec string
	logger        *zap.Logger
}

// New creates a Scheduler. Empty specs disable the corresponding job.
func New(jobs Jobs, crawlSpec, lifecycleSpec string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:          cron.New(),
		jobs:          jobs,
		crawlSpec:     crawlSpec,
		lifecycleSpec: lifecycleSpec,
		logger:        logger,
	}
}

// Start registers the enabled jobs and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.crawlSpec != "" {
		if _, err := s.cron.AddFunc(s.crawlSpec, func() { s.jobs.Crawl(ctx) }); err != nil {
			return fmt.Errorf("register crawl schedule %q: %w", s.crawlSpec, err)
		}
	}
	if s.lifecycleSpec != "" {
		if _, err := s.cron.AddFunc(s.lifecycleSpec, func() { s.jobs.Lifecycle(ctx) }); err != nil {
			return fmt.Errorf("register lifecycle schedule %q: %w", s.lifecycleSpec, err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("crawl_spec", s.crawlSpec),
		zap.String("lifecycle_spec", s.lifecycleSpec),
	)
	return nil
}

// Stop halts scheduling and waits for a running tick to complete.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}
