package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/jobradar/jobradar/internal/store"
)

func TestRunLedgerCreateCrawlRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewRunLedger(mock)
	want := uuid.New()

	mock.ExpectQuery("insert into jobradar.crawl_runs").
		WithArgs("linkedin", "manual").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(want))

	got, err := ledger.CreateCrawlRun(context.Background(), "linkedin", "manual")
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLedgerFinishCrawlRunDefaultsStats(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewRunLedger(mock)
	id := uuid.New()

	mock.ExpectExec("update jobradar.crawl_runs").
		WithArgs("success", json.RawMessage(`{}`), (*string)(nil), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = ledger.FinishCrawlRun(context.Background(), id, store.CrawlSuccess, nil, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLedgerLatestCrawlRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewRunLedger(mock)

	mock.ExpectQuery("select id, platform, trigger").
		WithArgs("xing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "platform", "trigger", "status", "started_at", "finished_at", "stats", "error",
		}))

	_, err = ledger.LatestCrawlRun(context.Background(), "xing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLedgerLatestCrawlRunScans(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewRunLedger(mock)

	id := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(20 * time.Minute)

	mock.ExpectQuery("select id, platform, trigger").
		WithArgs("linkedin").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "platform", "trigger", "status", "started_at", "finished_at", "stats", "error",
		}).AddRow(id, "linkedin", "cron", "success", started, &finished, []byte(`{}`), nil))

	run, err := ledger.LatestCrawlRun(context.Background(), "linkedin")
	require.NoError(t, err)
	require.Equal(t, id, run.ID)
	require.Equal(t, store.CrawlSuccess, run.Status)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, finished, *run.FinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLedgerListEnabledSearchesDecodesFacets(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewRunLedger(mock)
	defID := uuid.New()

	mock.ExpectQuery("select id, platform, name, keywords").
		WithArgs("linkedin").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "platform", "name", "keywords", "location_text", "geo_id", "facets", "date_window", "enabled",
		}).AddRow(defID, "linkedin", "go-berlin", "golang", "Berlin", "106967730", []byte(`{"f_WT":"2"}`), "", true))

	defs, err := ledger.ListEnabledSearches(context.Background(), "linkedin")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Equal(t, "go-berlin", defs[0].Name)
	require.Equal(t, map[string]string{"f_WT": "2"}, defs[0].Facets)
	require.Equal(t, "", defs[0].DateWindow)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLedgerEnsureSearchRunReturnsID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewRunLedger(mock)
	crawlID := uuid.New()
	defID := uuid.New()
	runID := uuid.New()

	mock.ExpectQuery("insert into jobradar.search_runs").
		WithArgs(crawlID, defID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(runID))

	got, err := ledger.EnsureSearchRun(context.Background(), crawlID, defID)
	require.NoError(t, err)
	require.Equal(t, runID, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLedgerFinishSearchRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewRunLedger(mock)
	id := uuid.New()
	reason := "blocked after 3 consecutive blocked pages"

	mock.ExpectExec("update jobradar.search_runs").
		WithArgs("blocked", 4, 10, true, &reason, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = ledger.FinishSearchRun(context.Background(), id, store.SearchBlocked, 4, 10, true, &reason)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLedgerSearchHistoryEmptyTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewRunLedger(mock)
	defID := uuid.New()

	// bool_or over zero rows yields null.
	mock.ExpectQuery("select").
		WithArgs(defID).
		WillReturnRows(pgxmock.NewRows([]string{"has_finished", "last_success_finished_at"}).
			AddRow(nil, nil))

	hist, err := ledger.SearchHistory(context.Background(), defID)
	require.NoError(t, err)
	require.False(t, hist.HasFinished)
	require.Nil(t, hist.LastSuccessFinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLedgerSearchHistoryWithSuccess(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewRunLedger(mock)
	defID := uuid.New()
	finished := true
	last := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("select").
		WithArgs(defID).
		WillReturnRows(pgxmock.NewRows([]string{"has_finished", "last_success_finished_at"}).
			AddRow(&finished, &last))

	hist, err := ledger.SearchHistory(context.Background(), defID)
	require.NoError(t, err)
	require.True(t, hist.HasFinished)
	require.NotNil(t, hist.LastSuccessFinishedAt)
	require.Equal(t, last, *hist.LastSuccessFinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLedgerRecordPageFetch(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewRunLedger(mock)
	runID := uuid.New()
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("insert into jobradar.page_fetches").
		WithArgs(runID, 25, 429, 0, 0, true, pgxmock.AnyArg(), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = ledger.RecordPageFetch(context.Background(), store.PageFetch{
		SearchRunID: runID,
		PageOffset:  25,
		StatusCode:  429,
		Blocked:     true,
		Error:       "blocked status 429",
		FetchedAt:   at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLedgerFailRunningSearchRuns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewRunLedger(mock)
	crawlID := uuid.New()

	mock.ExpectExec("update jobradar.search_runs").
		WithArgs("watchdog: crawl run abandoned", crawlID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := ledger.FailRunningSearchRuns(context.Background(), crawlID, "watchdog: crawl run abandoned")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLedgerFailStaleCrawlRuns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewRunLedger(mock)
	staleID := uuid.New()

	mock.ExpectQuery("select id").
		WithArgs("180").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(staleID))
	mock.ExpectExec("update jobradar.search_runs").
		WithArgs("watchdog: stale running run", staleID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("update jobradar.crawl_runs").
		WithArgs("failed", json.RawMessage(`{}`), pgxmock.AnyArg(), staleID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ids, err := ledger.FailStaleCrawlRuns(context.Background(), 3*time.Hour, "watchdog: stale running run")
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{staleID}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLedgerFailStaleCrawlRunsZeroThreshold(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewRunLedger(mock)

	ids, err := ledger.FailStaleCrawlRuns(context.Background(), 0, "noop")
	require.NoError(t, err)
	require.Empty(t, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
