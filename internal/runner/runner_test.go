package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobradar/jobradar/internal/discovery"
	"github.com/jobradar/jobradar/internal/metrics"
	"github.com/jobradar/jobradar/internal/platform"
	"github.com/jobradar/jobradar/internal/store"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fakeLedger struct {
	store.RunLedger

	mu sync.Mutex

	searches   []store.SearchDefinition
	history    map[uuid.UUID]store.RunHistory
	listErr    error
	historyErr error

	crawlRunID    uuid.UUID
	crawlStatus   store.CrawlRunStatus
	crawlStats    json.RawMessage
	crawlErrText  *string
	crawlFinished int

	searchRuns     map[uuid.UUID]uuid.UUID // definition id -> search run id
	finished       map[uuid.UUID]store.SearchRun
	pageFetchCount int
}

func newFakeLedger(searches ...store.SearchDefinition) *fakeLedger {
	return &fakeLedger{
		searches:   searches,
		history:    map[uuid.UUID]store.RunHistory{},
		searchRuns: map[uuid.UUID]uuid.UUID{},
		finished:   map[uuid.UUID]store.SearchRun{},
	}
}

func (f *fakeLedger) CreateCrawlRun(_ context.Context, _, _ string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crawlRunID = uuid.New()
	return f.crawlRunID, nil
}

func (f *fakeLedger) FinishCrawlRun(_ context.Context, _ uuid.UUID, status store.CrawlRunStatus, stats json.RawMessage, errText *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crawlFinished++
	f.crawlStatus = status
	f.crawlStats = stats
	f.crawlErrText = errText
	return nil
}

func (f *fakeLedger) ListEnabledSearches(context.Context, string) ([]store.SearchDefinition, error) {
	return f.searches, f.listErr
}

func (f *fakeLedger) EnsureSearchRun(_ context.Context, _ uuid.UUID, defID uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.searchRuns[defID]; ok {
		return id, nil
	}
	id := uuid.New()
	f.searchRuns[defID] = id
	return id, nil
}

func (f *fakeLedger) FinishSearchRun(_ context.Context, id uuid.UUID, status store.SearchRunStatus, pages, jobs int, blocked bool, errText *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.finished[id]; dup {
		return fmt.Errorf("search run %s finished twice", id)
	}
	f.finished[id] = store.SearchRun{
		ID: id, Status: status, PagesFetched: pages, JobsDiscovered: jobs, Blocked: blocked, Error: errText,
	}
	return nil
}

func (f *fakeLedger) SearchHistory(_ context.Context, defID uuid.UUID) (store.RunHistory, error) {
	if f.historyErr != nil {
		return store.RunHistory{}, f.historyErr
	}
	return f.history[defID], nil
}

func (f *fakeLedger) RecordPageFetch(context.Context, store.PageFetch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageFetchCount++
	return nil
}

func (f *fakeLedger) finishedFor(t *testing.T, defID uuid.UUID) store.SearchRun {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.searchRuns[defID]
	require.True(t, ok, "search run never ensured")
	run, ok := f.finished[id]
	require.True(t, ok, "search run never finished")
	return run
}

type fakeJobs struct {
	store.JobStore

	mu        sync.Mutex
	sightings []store.JobSighting
}

func (f *fakeJobs) Upsert(_ context.Context, s store.JobSighting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sightings = append(f.sightings, s)
	return nil
}

// scriptedFetcher maps search name to a page sequence; walks past the end
// repeat the final page.
type scriptedFetcher struct {
	mu    sync.Mutex
	pages map[string][]discovery.PageResult
	calls map[string]int
}

func (f *scriptedFetcher) FetchPage(_ context.Context, req discovery.PageRequest) (discovery.PageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	seq := f.pages[req.Search.Name]
	i := f.calls[req.Search.Name]
	f.calls[req.Search.Name]++
	if i >= len(seq) {
		i = len(seq) - 1
	}
	return seq[i], nil
}

// csvExtractor treats the body as comma-separated job ids.
type csvExtractor struct{}

func (csvExtractor) Extract(body string) ([]discovery.Listing, error) {
	if body == "" {
		return nil, nil
	}
	var out []discovery.Listing
	for i, id := range strings.Split(body, ",") {
		out = append(out, discovery.Listing{JobID: id, JobURL: "https://example.com/" + id, Rank: i})
	}
	return out, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func testPlatform() platform.Config {
	return platform.Config{
		Name:        "linkedin",
		PageSize:    3,
		Concurrency: 2,
		BlockRules:  discovery.BlockRules{StatusCodes: []int{429}},
	}
}

func testBudget() discovery.Budget {
	return discovery.Budget{
		MaxPagesPerSearch:    5,
		MaxJobsPerSearch:     100,
		CircuitBreakerBlocks: 3,
		DuplicatePageLimit:   3,
	}
}

func newTestRunner(ledger *fakeLedger, jobs *fakeJobs, fetcher discovery.Fetcher) *Runner {
	return New(
		testPlatform(), ledger, jobs, fetcher, csvExtractor{},
		testBudget(), discovery.DefaultWindowPolicy(),
		fixedClock{time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
		zap.NewNop(),
	)
}

func ok(body string) discovery.PageResult {
	return discovery.PageResult{StatusCode: 200, Body: body, FinalURL: "https://example.com/search"}
}

func blocked() discovery.PageResult {
	return discovery.PageResult{StatusCode: 429, FinalURL: "https://example.com/search"}
}

func def(name string) store.SearchDefinition {
	return store.SearchDefinition{
		ID: uuid.New(), Platform: "linkedin", Name: name, Keywords: "golang", Enabled: true,
	}
}

func TestRunnerSuccessfulRun(t *testing.T) {
	t.Parallel()

	a := def("go-berlin")
	b := def("go-munich")
	ledger := newFakeLedger(a, b)
	jobs := &fakeJobs{}
	fetcher := &scriptedFetcher{pages: map[string][]discovery.PageResult{
		"go-berlin": {ok("a1,a2,a3"), ok("a1,a2,a3")},
		"go-munich": {ok("b1,b2"), ok("b1,b2")},
	}}

	report, err := newTestRunner(ledger, jobs, fetcher).Run(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, store.CrawlSuccess, report.Status)
	assert.Equal(t, 5, report.JobsDiscovered)
	assert.Len(t, report.Searches, 2)

	assert.Equal(t, 1, ledger.crawlFinished)
	assert.Equal(t, store.CrawlSuccess, ledger.crawlStatus)
	assert.Contains(t, string(ledger.crawlStats), `"discovery"`)

	runA := ledger.finishedFor(t, a.ID)
	assert.Equal(t, store.SearchSuccess, runA.Status)
	assert.Equal(t, 3, runA.JobsDiscovered)
	assert.False(t, runA.Blocked)

	// one sighting per unique job id across both searches
	assert.Len(t, jobs.sightings, 5)
}

func TestRunnerNoEnabledSearchesFailsRun(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	_, err := newTestRunner(ledger, &fakeJobs{}, &scriptedFetcher{}).Run(context.Background(), "cron")
	require.ErrorIs(t, err, ErrNoSearches)

	assert.Equal(t, 1, ledger.crawlFinished)
	assert.Equal(t, store.CrawlFailed, ledger.crawlStatus)
	require.NotNil(t, ledger.crawlErrText)
	assert.Contains(t, *ledger.crawlErrText, "no enabled searches")
}

func TestRunnerBlockedSearchDegradesCrawlStatus(t *testing.T) {
	t.Parallel()

	good := def("good")
	bad := def("walled")
	ledger := newFakeLedger(good, bad)
	fetcher := &scriptedFetcher{pages: map[string][]discovery.PageResult{
		"good":   {ok("a1"), ok("a1")},
		"walled": {blocked()},
	}}

	report, err := newTestRunner(ledger, &fakeJobs{}, fetcher).Run(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, store.CrawlBlocked, report.Status)
	assert.Equal(t, store.SearchBlocked, ledger.finishedFor(t, bad.ID).Status)
	assert.True(t, ledger.finishedFor(t, bad.ID).Blocked)
	assert.Equal(t, store.SearchSuccess, ledger.finishedFor(t, good.ID).Status)
}

func TestRunnerFailedSearchOutranksBlocked(t *testing.T) {
	t.Parallel()

	walled := def("walled")
	broken := def("broken")
	ledger := newFakeLedger(walled, broken)
	fetcher := &scriptedFetcher{pages: map[string][]discovery.PageResult{
		"walled": {blocked()},
		"broken": {ok("malformed")},
	}}

	runner := New(
		testPlatform(), ledger, &fakeJobs{}, fetcher, failingExtractor{},
		testBudget(), discovery.DefaultWindowPolicy(),
		fixedClock{time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
		zap.NewNop(),
	)
	report, err := runner.Run(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, store.CrawlFailed, report.Status)
}

type failingExtractor struct{}

func (failingExtractor) Extract(string) ([]discovery.Listing, error) {
	return nil, fmt.Errorf("unrecognized page layout")
}

func TestRunnerExplicitWindowWins(t *testing.T) {
	t.Parallel()

	d := def("static-window")
	d.DateWindow = "r2592000"
	ledger := newFakeLedger(d)
	recent := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	ledger.history[d.ID] = store.RunHistory{HasFinished: true, LastSuccessFinishedAt: &recent}
	fetcher := &scriptedFetcher{pages: map[string][]discovery.PageResult{
		"static-window": {ok("a1"), ok("a1")},
	}}

	report, err := newTestRunner(ledger, &fakeJobs{}, fetcher).Run(context.Background(), "manual")
	require.NoError(t, err)
	require.Len(t, report.Searches, 1)
	assert.Equal(t, "r2592000", report.Searches[0].Window)
}

func TestRunnerAdaptiveWindowFromHistory(t *testing.T) {
	t.Parallel()

	d := def("adaptive")
	ledger := newFakeLedger(d)
	recent := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC) // 10h before the fixed clock
	ledger.history[d.ID] = store.RunHistory{HasFinished: true, LastSuccessFinishedAt: &recent}
	fetcher := &scriptedFetcher{pages: map[string][]discovery.PageResult{
		"adaptive": {ok("a1"), ok("a1")},
	}}

	report, err := newTestRunner(ledger, &fakeJobs{}, fetcher).Run(context.Background(), "manual")
	require.NoError(t, err)
	require.Len(t, report.Searches, 1)
	assert.Equal(t, "r86400", report.Searches[0].Window)
}

func TestRunnerFirstRunUnboundedWindow(t *testing.T) {
	t.Parallel()

	d := def("first-run")
	ledger := newFakeLedger(d)
	fetcher := &scriptedFetcher{pages: map[string][]discovery.PageResult{
		"first-run": {ok("a1"), ok("a1")},
	}}

	report, err := newTestRunner(ledger, &fakeJobs{}, fetcher).Run(context.Background(), "manual")
	require.NoError(t, err)
	require.Len(t, report.Searches, 1)
	assert.Equal(t, "", report.Searches[0].Window)
}

func TestRunnerCanceledContextFinalizesRuns(t *testing.T) {
	t.Parallel()

	d := def("canceled")
	ledger := newFakeLedger(d)
	fetcher := &scriptedFetcher{pages: map[string][]discovery.PageResult{
		"canceled": {ok("a1")},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestRunner(ledger, &fakeJobs{}, fetcher).Run(ctx, "manual")
	require.NoError(t, err)

	assert.Equal(t, store.CrawlFailed, report.Status)
	assert.Equal(t, 1, ledger.crawlFinished)
	run := ledger.finishedFor(t, d.ID)
	assert.Equal(t, store.SearchFailed, run.Status)
	require.NotNil(t, run.Error)
}
