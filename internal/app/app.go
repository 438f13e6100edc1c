// Package app initializes and holds long-lived application services,
// acting as a dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jobradar/jobradar/internal/api"
	"github.com/jobradar/jobradar/internal/clock/system"
	"github.com/jobradar/jobradar/internal/config"
	"github.com/jobradar/jobradar/internal/discovery"
	"github.com/jobradar/jobradar/internal/extract"
	collyfetch "github.com/jobradar/jobradar/internal/fetch/colly"
	"github.com/jobradar/jobradar/internal/fetch/headless"
	idgen "github.com/jobradar/jobradar/internal/id/uuid"
	"github.com/jobradar/jobradar/internal/lifecycle"
	"github.com/jobradar/jobradar/internal/platform"
	"github.com/jobradar/jobradar/internal/publisher"
	memorypublisher "github.com/jobradar/jobradar/internal/publisher/memory"
	pubsubpublisher "github.com/jobradar/jobradar/internal/publisher/pubsub"
	"github.com/jobradar/jobradar/internal/runner"
	"github.com/jobradar/jobradar/internal/scheduler"
	"github.com/jobradar/jobradar/internal/storage/postgres"
	"github.com/jobradar/jobradar/internal/store"
)

// Event type attributes carried on published messages.
const (
	topicCrawlFinished       = "crawl.finished"
	topicMaintenanceFinished = "maintenance.finished"
)

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and passed to the commands that need it.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool

	runs        store.RunLedger
	jobs        store.JobStore
	maintenance store.MaintenanceLedger

	events publisher.Publisher
	clock  *system.Clock
	ids    *idgen.Generator

	pubsubCloser func() error
}

// New creates and initializes an App from the loaded configuration. It
// fails fast when the database or the configured Pub/Sub project cannot
// be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxOpenConns),
	})
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	a := &App{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		runs:        postgres.NewRunLedger(pool),
		jobs:        postgres.NewJobStore(pool),
		maintenance: postgres.NewMaintenanceLedger(pool),
		clock:       system.New(),
		ids:         idgen.New(),
	}

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("initialize pubsub: %w", err)
		}
		logger.Info("pubsub publisher connected",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.TopicName),
		)
		a.events = pub
		a.pubsubCloser = pub.Close
	} else {
		logger.Info("no pubsub project configured, events stay in memory")
		a.events = memorypublisher.New()
	}

	return a, nil
}

// Close releases the pooled resources.
func (a *App) Close() {
	if a.pubsubCloser != nil {
		if err := a.pubsubCloser(); err != nil {
			a.logger.Warn("pubsub close failed", zap.Error(err))
		}
	}
	a.pool.Close()
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Crawl runs one discovery pass for the platform. Platforms that only
// render listings client-side get a browser-backed fetcher; the rest go
// through plain HTTP.
func (a *App) Crawl(ctx context.Context, platformName, trigger string) (runner.Report, error) {
	ctx, cancel := withRunDeadline(ctx, a.cfg.CrawlRunTimeout())
	defer cancel()

	pcfg, err := platform.Lookup(platformName)
	if err != nil {
		return runner.Report{}, err
	}
	extractor, err := extract.ForPlatform(pcfg.Name)
	if err != nil {
		return runner.Report{}, err
	}

	fetcher, closeFetcher, err := a.buildFetcher(pcfg)
	if err != nil {
		return runner.Report{}, err
	}
	defer closeFetcher()

	r := runner.New(
		pcfg, a.runs, a.jobs, fetcher, extractor,
		a.cfg.Budget(), a.cfg.WindowPolicy(), a.clock, a.logger,
	)
	report, err := r.Run(ctx, trigger)
	if err != nil {
		return report, err
	}
	a.publishCrawlFinished(ctx, report)
	return report, nil
}

// CrawlAll runs discovery for every registered platform in sequence.
// Platforms are isolated; the reports carry per-platform outcomes.
func (a *App) CrawlAll(ctx context.Context, trigger string) []runner.Report {
	var reports []runner.Report
	for _, name := range platform.Names() {
		report, err := a.Crawl(ctx, name, trigger)
		if err != nil {
			a.logger.Error("platform crawl failed",
				zap.String("platform", name), zap.Error(err))
		}
		reports = append(reports, report)
	}
	return reports
}

// Maintain runs one lifecycle maintenance pass.
func (a *App) Maintain(ctx context.Context, opts lifecycle.Options) (lifecycle.Summary, error) {
	ctx, cancel := withRunDeadline(ctx, a.cfg.MaintenanceRunTimeout())
	defer cancel()

	m := lifecycle.NewMaintainer(a.runs, a.jobs, a.maintenance, a.clock, a.logger)
	summary, err := m.Run(ctx, opts)
	if err != nil {
		return summary, err
	}
	a.publishMaintenanceFinished(ctx, opts, summary)
	return summary, nil
}

// Watchdog reaps crawl runs stuck in running past the staleness threshold.
func (a *App) Watchdog(ctx context.Context) ([]uuid.UUID, error) {
	reaped, err := a.runs.FailStaleCrawlRuns(ctx, a.cfg.WatchdogThreshold(), "stale crawl run reaped by watchdog")
	if err != nil {
		return nil, fmt.Errorf("fail stale crawl runs: %w", err)
	}
	for _, id := range reaped {
		a.logger.Warn("stale crawl run reaped", zap.String("crawl_run_id", id.String()))
	}
	return reaped, nil
}

// Server builds the read-only HTTP API over the stores.
func (a *App) Server() *api.Server {
	return api.NewServer(a.runs, a.jobs, a.maintenance, a.cfg.Crawl.DetailStalenessDays, a.logger.Named("api"))
}

// Scheduler builds the cron loop for the long-running serve mode.
func (a *App) Scheduler() *scheduler.Scheduler {
	return scheduler.New(scheduler.Jobs{
		Crawl: func(ctx context.Context) {
			a.CrawlAll(ctx, "cron")
		},
		Lifecycle: func(ctx context.Context) {
			if _, err := a.Maintain(ctx, a.MaintenanceOptions("cron", false)); err != nil {
				a.logger.Error("scheduled maintenance failed", zap.Error(err))
			}
			if _, err := a.Watchdog(ctx); err != nil {
				a.logger.Error("scheduled watchdog failed", zap.Error(err))
			}
		},
	}, a.cfg.Schedule.Crawl, a.cfg.Schedule.Lifecycle, a.logger.Named("scheduler"))
}

// MaintenanceOptions derives lifecycle options from config defaults.
func (a *App) MaintenanceOptions(trigger string, dryRun bool) lifecycle.Options {
	return lifecycle.Options{
		Trigger:             trigger,
		Platforms:           platform.Names(),
		StaleAfterDays:      a.cfg.Lifecycle.StaleAfterDays,
		HardDeleteAfterDays: a.cfg.Lifecycle.HardDeleteAfterDays,
		MaxCrawlAgeHours:    a.cfg.Lifecycle.MaxCrawlAgeHours,
		DryRun:              dryRun,
	}
}

// buildFetcher picks the transport for one platform. The returned close
// function tears down the browser when one was started.
// withRunDeadline bounds a whole run with a wall-clock deadline so a
// drip-fed crawl or a hung statement cannot outlive its per-request
// timeouts indefinitely. A non-positive duration leaves the context as is.
func withRunDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func (a *App) buildFetcher(pcfg platform.Config) (discovery.Fetcher, func(), error) {
	if !pcfg.Headless {
		f := collyfetch.New(collyfetch.Config{
			UserAgent:      a.cfg.Crawl.UserAgent,
			AcceptLanguage: a.cfg.Crawl.AcceptLanguage,
			Timeout:        a.cfg.FetchTimeout(),
		}, pcfg.SearchURL)
		return f, func() {}, nil
	}
	if !a.cfg.Headless.Enabled {
		return headless.NewNoop(), func() {}, nil
	}
	f, err := headless.New(headless.Config{
		MaxParallel:       a.cfg.Headless.MaxParallel,
		UserAgent:         a.cfg.Crawl.UserAgent,
		AcceptLanguage:    a.cfg.Crawl.AcceptLanguage,
		NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
		SettleDelay:       time.Duration(a.cfg.Headless.SettleMs) * time.Millisecond,
	}, pcfg.SearchURL)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize headless fetcher: %w", err)
	}
	return f, f.Close, nil
}

func (a *App) publishCrawlFinished(ctx context.Context, report runner.Report) {
	eventID, err := a.ids.NewID()
	if err != nil {
		a.logger.Warn("event id generation failed", zap.Error(err))
		return
	}
	_, err = a.events.Publish(ctx, topicCrawlFinished, publisher.CrawlFinishedEvent{
		EventID:        eventID,
		RunID:          report.RunID.String(),
		Platform:       report.Platform,
		Trigger:        report.Trigger,
		Status:         string(report.Status),
		PagesFetched:   report.PagesFetched,
		JobsDiscovered: report.JobsDiscovered,
		FinishedAt:     a.clock.Now(),
	})
	if err != nil {
		a.logger.Warn("crawl event publish failed", zap.Error(err))
	}
}

func (a *App) publishMaintenanceFinished(ctx context.Context, opts lifecycle.Options, summary lifecycle.Summary) {
	eventID, err := a.ids.NewID()
	if err != nil {
		a.logger.Warn("event id generation failed", zap.Error(err))
		return
	}
	_, err = a.events.Publish(ctx, topicMaintenanceFinished, publisher.MaintenanceFinishedEvent{
		EventID:     eventID,
		RunID:       summary.RunID.String(),
		Trigger:     opts.Trigger,
		Status:      summary.Status,
		DryRun:      opts.DryRun,
		StaleMarked: summary.Totals.StaleMarked,
		DeletedJobs: summary.Totals.DeletedJobs,
		FinishedAt:  a.clock.Now(),
	})
	if err != nil {
		a.logger.Warn("maintenance event publish failed", zap.Error(err))
	}
}
