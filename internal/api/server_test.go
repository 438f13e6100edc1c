package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobradar/jobradar/internal/metrics"
	"github.com/jobradar/jobradar/internal/store"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type mockRunLedger struct {
	store.RunLedger

	runs       []store.CrawlRun
	searchRuns []store.SearchRun
	err        error
}

func (m *mockRunLedger) ListCrawlRuns(_ context.Context, platform string, limit, _ int) ([]store.CrawlRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]store.CrawlRun, 0, limit)
	for _, r := range m.runs {
		if platform != "" && r.Platform != platform {
			continue
		}
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRunLedger) GetCrawlRun(_ context.Context, id uuid.UUID) (store.CrawlRun, error) {
	if m.err != nil {
		return store.CrawlRun{}, m.err
	}
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return store.CrawlRun{}, store.ErrNotFound
}

func (m *mockRunLedger) ListSearchRuns(_ context.Context, _ uuid.UUID) ([]store.SearchRun, error) {
	return m.searchRuns, nil
}

type mockJobStore struct {
	store.JobStore

	jobs       []store.Job
	detailDays int
	err        error
}

func (m *mockJobStore) ListJobs(_ context.Context, _ string, _ bool, _, _ int) ([]store.Job, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.jobs, nil
}

func (m *mockJobStore) ListDetailCandidates(_ context.Context, _ string, days, _ int) ([]store.Job, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.detailDays = days
	return m.jobs, nil
}

type mockMaintLedger struct {
	store.MaintenanceLedger

	runs []store.LifecycleRun
	err  error
}

func (m *mockMaintLedger) ListRuns(_ context.Context, _, _ int) ([]store.LifecycleRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.runs, nil
}

func newTestServer(runs *mockRunLedger, jobs *mockJobStore, lc *mockMaintLedger) *Server {
	if runs == nil {
		runs = &mockRunLedger{}
	}
	if jobs == nil {
		jobs = &mockJobStore{}
	}
	if lc == nil {
		lc = &mockMaintLedger{}
	}
	return NewServer(runs, jobs, lc, 0, zap.NewNop())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(nil, nil, nil), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzChecksDatabase(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(nil, nil, nil), "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	broken := newTestServer(nil, nil, &mockMaintLedger{err: context.DeadlineExceeded})
	rec = get(t, broken, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListCrawlRuns(t *testing.T) {
	t.Parallel()

	s := newTestServer(&mockRunLedger{runs: []store.CrawlRun{
		{ID: uuid.New(), Platform: "linkedin", Status: store.CrawlSuccess, StartedAt: time.Now()},
		{ID: uuid.New(), Platform: "xing", Status: store.CrawlFailed, StartedAt: time.Now()},
	}}, nil, nil)

	rec := get(t, s, "/v1/runs?platform=LinkedIn")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []store.CrawlRun `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, "linkedin", body.Runs[0].Platform)
}

func TestListCrawlRunsInvalidLimit(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(nil, nil, nil), "/v1/runs?limit=-5")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCrawlRunWithSearchRuns(t *testing.T) {
	t.Parallel()

	run := store.CrawlRun{ID: uuid.New(), Platform: "stepstone", Status: store.CrawlSuccess, StartedAt: time.Now()}
	s := newTestServer(&mockRunLedger{
		runs:       []store.CrawlRun{run},
		searchRuns: []store.SearchRun{{ID: uuid.New(), CrawlRunID: run.ID, Status: store.SearchSuccess}},
	}, nil, nil)

	rec := get(t, s, "/v1/runs/"+run.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run        store.CrawlRun    `json:"run"`
		SearchRuns []store.SearchRun `json:"search_runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, run.ID, body.Run.ID)
	require.Len(t, body.SearchRuns, 1)
}

func TestGetCrawlRunNotFound(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(nil, nil, nil), "/v1/runs/"+uuid.NewString())
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCrawlRunInvalidID(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(nil, nil, nil), "/v1/runs/not-a-uuid")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobsRequiresPlatform(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(nil, nil, nil), "/v1/jobs")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	s := newTestServer(nil, &mockJobStore{jobs: []store.Job{
		{Platform: "linkedin", JobID: "4242", JobURL: "https://www.linkedin.com/jobs/view/4242", IsActive: true},
	}}, nil)

	rec := get(t, s, "/v1/jobs?platform=linkedin&active=true")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Jobs []store.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 1)
	require.Equal(t, "4242", body.Jobs[0].JobID)
}

func TestListDetailCandidates(t *testing.T) {
	t.Parallel()

	jobs := &mockJobStore{jobs: []store.Job{
		{Platform: "stepstone", JobID: "77", JobURL: "https://www.stepstone.de/77"},
	}}
	s := newTestServer(nil, jobs, nil)

	rec := get(t, s, "/v1/jobs/detail-candidates?platform=stepstone&days=14")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 14, jobs.detailDays)

	rec = get(t, s, "/v1/jobs/detail-candidates?platform=stepstone")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 7, jobs.detailDays)
}

func TestListDetailCandidatesRejectsBadDays(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(nil, nil, nil), "/v1/jobs/detail-candidates?platform=xing&days=0")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobsInvalidActive(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(nil, nil, nil), "/v1/jobs?platform=linkedin&active=maybe")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListLifecycleRuns(t *testing.T) {
	t.Parallel()

	s := newTestServer(nil, nil, &mockMaintLedger{runs: []store.LifecycleRun{
		{ID: uuid.New(), Trigger: "cron", Status: "success", StartedAt: time.Now()},
	}})

	rec := get(t, s, "/v1/lifecycle/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []store.LifecycleRun `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(nil, nil, nil), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}
