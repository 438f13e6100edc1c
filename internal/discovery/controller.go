package discovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// walkState is the controller's explicit state.
type walkState int

const (
	stateFetching walkState = iota
	stateExhausted
	stateBlocked
	stateFailed
)

// counters is the mutable pagination state owned by exactly one Controller
// run. The seen set is per search run: it detects pagination looping within
// one walk, never cross-run duplication.
type counters struct {
	pagesFetched   int
	jobsDiscovered int
	dupStreak      int
	blockStreak    int
	failStreak     int
}

// Controller walks one search's paginated results until a stop condition
// fires. A Controller is single-use per search run and is not safe for
// concurrent use; pagination within a run is strictly sequential because
// each offset depends on the previous page's item count.
type Controller struct {
	fetcher   Fetcher
	extractor Extractor
	sink      Sink
	detector  *Detector
	budget    Budget
	clock     Clock
	delay     time.Duration
	logger    *zap.Logger
}

// NewController builds a Controller.
func NewController(
	fetcher Fetcher,
	extractor Extractor,
	sink Sink,
	detector *Detector,
	budget Budget,
	clock Clock,
	delay time.Duration,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		fetcher:   fetcher,
		extractor: extractor,
		sink:      sink,
		detector:  detector,
		budget:    budget,
		clock:     clock,
		delay:     delay,
		logger:    logger,
	}
}

// transition evaluates the stop conditions in priority order against the
// current counters. It is the single place the state machine advances.
func (c *Controller) transition(n counters) (walkState, StopReason) {
	switch {
	case n.pagesFetched >= c.budget.MaxPagesPerSearch:
		return stateExhausted, StopPageBudget
	case n.jobsDiscovered >= c.budget.MaxJobsPerSearch:
		return stateExhausted, StopJobBudget
	case n.dupStreak >= c.budget.DuplicatePageLimit:
		return stateExhausted, StopDuplicatePages
	case n.blockStreak >= c.budget.CircuitBreakerBlocks:
		return stateBlocked, StopCircuitBreaker
	case n.failStreak >= c.budget.CircuitBreakerBlocks:
		return stateFailed, StopTransportFails
	default:
		return stateFetching, ""
	}
}

// Run walks the search until a stop condition fires or the context ends.
// Every page attempt is recorded through the sink; blocked pages are never
// parsed or upserted. The returned Outcome is the search run's terminal
// result; Run itself only errors on sink failures.
func (c *Controller) Run(ctx context.Context, search Search) (Outcome, error) {
	var (
		n      counters
		seen   = make(map[string]struct{})
		offset int
		state  = stateFetching
		reason StopReason
	)

	for {
		state, reason = c.transition(n)
		if state != stateFetching {
			break
		}
		if err := ctx.Err(); err != nil {
			return c.outcome(stateFailed, StopCanceled, n, err.Error()), nil
		}

		advance, err := c.fetchOne(ctx, search, offset, seen, &n)
		if err != nil {
			return Outcome{}, err
		}
		offset += advance

		if c.delay > 0 {
			select {
			case <-ctx.Done():
				return c.outcome(stateFailed, StopCanceled, n, ctx.Err().Error()), nil
			case <-time.After(c.delay):
			}
		}
	}

	c.logger.Info("pagination stopped",
		zap.String("search", search.Name),
		zap.String("reason", string(reason)),
		zap.Int("pages_fetched", n.pagesFetched),
		zap.Int("jobs_discovered", n.jobsDiscovered),
	)
	return c.outcome(state, reason, n, ""), nil
}

// fetchOne fetches and processes a single page at the given offset. The
// returned advance is the number of items the offset moves forward by: the
// actual item count of a non-blocked page, zero for blocked or failed pages
// (they are retried at the same offset until a streak threshold fires).
func (c *Controller) fetchOne(
	ctx context.Context,
	search Search,
	offset int,
	seen map[string]struct{},
	n *counters,
) (int, error) {
	now := c.clock.Now()
	page, err := c.fetcher.FetchPage(ctx, PageRequest{Search: search, Offset: offset})
	n.pagesFetched++

	if err != nil {
		blockedTransport := c.detector.TransportBlocked(err)
		if blockedTransport {
			n.blockStreak++
		} else {
			n.failStreak++
		}
		c.logger.Warn("page fetch failed",
			zap.String("search", search.Name),
			zap.Int("offset", offset),
			zap.Bool("adversarial", blockedTransport),
			zap.Error(err),
		)
		fact := PageFetch{
			SearchRunID: search.RunID,
			PageOffset:  offset,
			Blocked:     blockedTransport,
			Error:       truncate(err.Error(), 500),
			FetchedAt:   now,
		}
		if serr := c.sink.RecordPageFetch(ctx, fact); serr != nil {
			return 0, fmt.Errorf("record page fetch: %w", serr)
		}
		return 0, nil
	}

	if c.detector.Blocked(page.StatusCode, page.Body, page.FinalURL) {
		n.blockStreak++
		fact := PageFetch{
			SearchRunID: search.RunID,
			PageOffset:  offset,
			StatusCode:  page.StatusCode,
			Blocked:     true,
			FetchedAt:   now,
		}
		if serr := c.sink.RecordPageFetch(ctx, fact); serr != nil {
			return 0, fmt.Errorf("record page fetch: %w", serr)
		}
		return 0, nil
	}

	n.blockStreak = 0
	n.failStreak = 0

	listings, err := c.extractor.Extract(page.Body)
	if err != nil {
		// A page that classified as clean but does not parse is a failure,
		// not a block.
		n.failStreak++
		fact := PageFetch{
			SearchRunID: search.RunID,
			PageOffset:  offset,
			StatusCode:  page.StatusCode,
			Error:       truncate(err.Error(), 500),
			FetchedAt:   now,
		}
		if serr := c.sink.RecordPageFetch(ctx, fact); serr != nil {
			return 0, fmt.Errorf("record page fetch: %w", serr)
		}
		return 0, nil
	}

	newCount := 0
	for _, it := range listings {
		if it.JobID == "" || it.JobURL == "" {
			continue
		}
		if _, dup := seen[it.JobID]; dup {
			continue
		}
		seen[it.JobID] = struct{}{}
		newCount++
		n.jobsDiscovered++

		sighting := Sighting{
			SearchRunID: search.RunID,
			Platform:    search.Platform,
			JobID:       it.JobID,
			JobURL:      it.JobURL,
			Rank:        it.Rank,
			PageOffset:  offset,
			SeenAt:      now,
		}
		if serr := c.sink.RecordSighting(ctx, sighting); serr != nil {
			return 0, fmt.Errorf("record sighting: %w", serr)
		}
	}

	if newCount == 0 {
		n.dupStreak++
	} else {
		n.dupStreak = 0
	}

	fact := PageFetch{
		SearchRunID: search.RunID,
		PageOffset:  offset,
		StatusCode:  page.StatusCode,
		ItemCount:   len(listings),
		NewCount:    newCount,
		FetchedAt:   now,
	}
	if serr := c.sink.RecordPageFetch(ctx, fact); serr != nil {
		return 0, fmt.Errorf("record page fetch: %w", serr)
	}

	// Platforms vary how many results one page returns; assuming a fixed
	// page size causes silent gaps or infinite stalls.
	return len(listings), nil
}

func (c *Controller) outcome(state walkState, reason StopReason, n counters, errText string) Outcome {
	out := Outcome{
		StopReason:     reason,
		PagesFetched:   n.pagesFetched,
		JobsDiscovered: n.jobsDiscovered,
		Error:          errText,
	}
	switch state {
	case stateBlocked:
		out.Status = RunBlocked
		out.Blocked = true
	case stateFailed:
		out.Status = RunFailed
	default:
		out.Status = RunSuccess
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
