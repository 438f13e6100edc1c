// Package runner orchestrates one crawl run: it fans the platform's
// enabled searches out under a concurrency cap, drives one pagination walk
// per search, and aggregates the per-search outcomes into the crawl run's
// terminal status.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jobradar/jobradar/internal/discovery"
	"github.com/jobradar/jobradar/internal/metrics"
	"github.com/jobradar/jobradar/internal/platform"
	"github.com/jobradar/jobradar/internal/store"
)

// ErrNoSearches is returned when a platform has no enabled searches; the
// crawl run is recorded as failed so the lifecycle gate never trusts it.
var ErrNoSearches = errors.New("no enabled searches")

// SearchReport is the outcome of one search's pagination walk.
type SearchReport struct {
	Name           string                `json:"name"`
	Window         string                `json:"window"`
	Status         store.SearchRunStatus `json:"status"`
	StopReason     string                `json:"stop_reason,omitempty"`
	PagesFetched   int                   `json:"pages_fetched"`
	JobsDiscovered int                   `json:"jobs_discovered"`
	Blocked        bool                  `json:"blocked"`
	Error          string                `json:"error,omitempty"`
}

// Report is the outcome of one crawl run.
type Report struct {
	RunID          uuid.UUID            `json:"run_id"`
	Platform       string               `json:"platform"`
	Trigger        string               `json:"trigger"`
	Status         store.CrawlRunStatus `json:"status"`
	Searches       []SearchReport       `json:"searches"`
	PagesFetched   int                  `json:"pages_fetched"`
	JobsDiscovered int                  `json:"jobs_discovered"`
	Duration       time.Duration        `json:"duration_ms"`
}

// Runner executes crawl runs for one platform.
type Runner struct {
	platform  platform.Config
	ledger    store.RunLedger
	jobs      store.JobStore
	fetcher   discovery.Fetcher
	extractor discovery.Extractor
	detector  *discovery.Detector
	budget    discovery.Budget
	windows   discovery.WindowPolicy
	clock     discovery.Clock
	logger    *zap.Logger
}

// New wires a Runner for one platform.
func New(
	cfg platform.Config,
	ledger store.RunLedger,
	jobs store.JobStore,
	fetcher discovery.Fetcher,
	extractor discovery.Extractor,
	budget discovery.Budget,
	windows discovery.WindowPolicy,
	clock discovery.Clock,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		platform:  cfg,
		ledger:    ledger,
		jobs:      jobs,
		fetcher:   fetcher,
		extractor: extractor,
		detector:  discovery.NewDetector(cfg.BlockRules),
		budget:    budget,
		windows:   windows,
		clock:     clock,
		logger:    logger.With(zap.String("platform", cfg.Name)),
	}
}

// Run executes one crawl run. Searches are isolated: one blocked or failed
// search never stops its siblings. The crawl run's status is the worst of
// its children (failed over blocked over success) and is written exactly
// once, even when the context is canceled mid-run.
func (r *Runner) Run(ctx context.Context, trigger string) (Report, error) {
	started := r.clock.Now()

	runID, err := r.ledger.CreateCrawlRun(ctx, r.platform.Name, trigger)
	if err != nil {
		return Report{}, fmt.Errorf("create crawl run: %w", err)
	}
	log := r.logger.With(zap.String("crawl_run_id", runID.String()))
	log.Info("crawl run started", zap.String("trigger", trigger))

	searches, err := r.ledger.ListEnabledSearches(ctx, r.platform.Name)
	if err == nil && len(searches) == 0 {
		err = ErrNoSearches
	}
	if err != nil {
		msg := err.Error()
		if ferr := r.finish(ctx, runID, store.CrawlFailed, nil, &msg); ferr != nil {
			log.Error("failed to finalize crawl run", zap.Error(ferr))
		}
		metrics.ObserveCrawlRun(r.platform.Name, string(store.CrawlFailed))
		return Report{RunID: runID, Platform: r.platform.Name, Trigger: trigger, Status: store.CrawlFailed},
			fmt.Errorf("list searches: %w", err)
	}

	reports := make([]SearchReport, len(searches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.platform.Concurrency)
	for i, def := range searches {
		g.Go(func() error {
			reports[i] = r.runSearch(gctx, runID, def)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; isolation is per search

	report := Report{
		RunID:    runID,
		Platform: r.platform.Name,
		Trigger:  trigger,
		Status:   worstStatus(reports),
		Searches: reports,
		Duration: r.clock.Now().Sub(started),
	}
	for _, sr := range reports {
		report.PagesFetched += sr.PagesFetched
		report.JobsDiscovered += sr.JobsDiscovered
	}

	stats, err := json.Marshal(map[string]any{"discovery": report})
	if err != nil {
		return report, fmt.Errorf("encode stats: %w", err)
	}
	if err := r.finish(ctx, runID, report.Status, stats, nil); err != nil {
		return report, fmt.Errorf("finish crawl run: %w", err)
	}
	metrics.ObserveCrawlRun(r.platform.Name, string(report.Status))
	log.Info("crawl run finished",
		zap.String("status", string(report.Status)),
		zap.Int("pages_fetched", report.PagesFetched),
		zap.Int("jobs_discovered", report.JobsDiscovered),
	)
	return report, nil
}

// finish writes the run's terminal row even when ctx is already canceled.
func (r *Runner) finish(ctx context.Context, runID uuid.UUID, status store.CrawlRunStatus, stats json.RawMessage, errText *string) error {
	return r.ledger.FinishCrawlRun(context.WithoutCancel(ctx), runID, status, stats, errText)
}

func (r *Runner) runSearch(ctx context.Context, crawlRunID uuid.UUID, def store.SearchDefinition) SearchReport {
	report := SearchReport{Name: def.Name, Status: store.SearchFailed}
	log := r.logger.With(zap.String("search", def.Name))

	searchRunID, err := r.ledger.EnsureSearchRun(ctx, crawlRunID, def.ID)
	if err != nil {
		report.Error = fmt.Sprintf("ensure search run: %v", err)
		log.Error("search run setup failed", zap.Error(err))
		return report
	}

	window, err := r.chooseWindow(ctx, def)
	if err != nil {
		report.Error = fmt.Sprintf("choose window: %v", err)
		r.finishSearch(ctx, searchRunID, report, log)
		return report
	}
	report.Window = window

	sink := &storeSink{jobs: r.jobs, ledger: r.ledger, platform: r.platform.Name, searchRunID: searchRunID}
	ctrl := discovery.NewController(
		r.fetcher, r.extractor, sink, r.detector,
		r.budget, r.clock, r.platform.Delay, log,
	)

	outcome, err := ctrl.Run(ctx, discovery.Search{
		ID:       def.ID.String(),
		Name:     def.Name,
		Platform: def.Platform,
		Keywords: def.Keywords,
		Location: def.LocationText,
		GeoID:    def.GeoID,
		Facets:   def.Facets,
		Window:   window,
		RunID:    searchRunID.String(),
	})
	if err != nil {
		report.Error = fmt.Sprintf("record discovery: %v", err)
		r.finishSearch(ctx, searchRunID, report, log)
		return report
	}

	report.Status = searchStatus(outcome.Status)
	report.StopReason = string(outcome.StopReason)
	report.PagesFetched = outcome.PagesFetched
	report.JobsDiscovered = outcome.JobsDiscovered
	report.Blocked = outcome.Blocked
	report.Error = outcome.Error
	r.finishSearch(ctx, searchRunID, report, log)
	return report
}

// chooseWindow applies the adaptive policy when the definition leaves the
// date window open.
func (r *Runner) chooseWindow(ctx context.Context, def store.SearchDefinition) (string, error) {
	if def.DateWindow != "" {
		return def.DateWindow, nil
	}
	hist, err := r.ledger.SearchHistory(ctx, def.ID)
	if err != nil {
		return "", err
	}
	return r.windows.Choose(def.DateWindow, discovery.RunHistory{
		HasFinished:           hist.HasFinished,
		LastSuccessFinishedAt: hist.LastSuccessFinishedAt,
	}, r.clock.Now()), nil
}

func (r *Runner) finishSearch(ctx context.Context, id uuid.UUID, report SearchReport, log *zap.Logger) {
	var errText *string
	if report.Error != "" {
		errText = &report.Error
	}
	err := r.ledger.FinishSearchRun(
		context.WithoutCancel(ctx), id, report.Status,
		report.PagesFetched, report.JobsDiscovered, report.Blocked, errText,
	)
	if err != nil {
		log.Error("failed to finalize search run", zap.Error(err))
		return
	}
	metrics.ObserveSearchRun(r.platform.Name, string(report.Status))
	metrics.ObserveJobsDiscovered(r.platform.Name, report.JobsDiscovered)
	log.Info("search run finished",
		zap.String("status", string(report.Status)),
		zap.String("stop_reason", report.StopReason),
		zap.Int("pages_fetched", report.PagesFetched),
		zap.Int("jobs_discovered", report.JobsDiscovered),
	)
}

func searchStatus(s discovery.RunStatus) store.SearchRunStatus {
	switch s {
	case discovery.RunSuccess:
		return store.SearchSuccess
	case discovery.RunBlocked:
		return store.SearchBlocked
	default:
		return store.SearchFailed
	}
}

// worstStatus aggregates child statuses: failed over blocked over success.
func worstStatus(reports []SearchReport) store.CrawlRunStatus {
	status := store.CrawlSuccess
	for _, r := range reports {
		switch r.Status {
		case store.SearchFailed:
			return store.CrawlFailed
		case store.SearchBlocked:
			status = store.CrawlBlocked
		}
	}
	return status
}

// storeSink bridges discovery side effects into the stores. It binds the
// search run id once so the pagination engine never handles UUIDs.
type storeSink struct {
	jobs        store.JobStore
	ledger      store.RunLedger
	platform    string
	searchRunID uuid.UUID
}

func pageOutcome(f discovery.PageFetch) string {
	switch {
	case f.Blocked:
		return "blocked"
	case f.Error != "":
		return "error"
	default:
		return "ok"
	}
}

func (s *storeSink) RecordSighting(ctx context.Context, sighting discovery.Sighting) error {
	return s.jobs.Upsert(ctx, store.JobSighting{
		SearchRunID: s.searchRunID,
		Platform:    sighting.Platform,
		JobID:       sighting.JobID,
		JobURL:      sighting.JobURL,
		Rank:        sighting.Rank,
		PageOffset:  sighting.PageOffset,
		SeenAt:      sighting.SeenAt,
	})
}

func (s *storeSink) RecordPageFetch(ctx context.Context, f discovery.PageFetch) error {
	metrics.ObservePageFetch(s.platform, pageOutcome(f))
	return s.ledger.RecordPageFetch(ctx, store.PageFetch{
		SearchRunID: s.searchRunID,
		PageOffset:  f.PageOffset,
		StatusCode:  f.StatusCode,
		ItemCount:   f.ItemCount,
		NewCount:    f.NewCount,
		Blocked:     f.Blocked,
		Error:       f.Error,
		FetchedAt:   f.FetchedAt,
	})
}
