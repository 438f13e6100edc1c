package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/jobradar/jobradar/internal/store"
)

func TestJobStoreUpsertWritesJobAndHit(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	jobs := NewJobStore(mock)
	runID := uuid.New()
	seen := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("insert into jobradar.jobs").
		WithArgs("linkedin", "4012345678", "https://www.linkedin.com/jobs/view/4012345678", seen, runID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("insert into jobradar.job_search_hits").
		WithArgs(runID, "linkedin", "4012345678", 3, 25, seen).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = jobs.Upsert(context.Background(), store.JobSighting{
		SearchRunID: runID,
		Platform:    "linkedin",
		JobID:       "4012345678",
		JobURL:      "https://www.linkedin.com/jobs/view/4012345678",
		Rank:        3,
		PageOffset:  25,
		SeenAt:      seen,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreSoftExpireCountAndApply(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	jobs := NewJobStore(mock)

	mock.ExpectQuery("select count").
		WithArgs("stepstone", "60").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(17)))

	n, err := jobs.CountSoftExpireCandidates(context.Background(), "stepstone", 60)
	require.NoError(t, err)
	require.Equal(t, int64(17), n)

	mock.ExpectExec("update jobradar.jobs").
		WithArgs("stepstone", "60").
		WillReturnResult(pgxmock.NewResult("UPDATE", 17))

	applied, err := jobs.ApplySoftExpire(context.Background(), "stepstone", 60)
	require.NoError(t, err)
	require.Equal(t, n, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreHardDeleteCascadeInOneTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	jobs := NewJobStore(mock)
	ctx := context.Background()

	mock.ExpectQuery("select count").
		WithArgs("xing", "120").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(5)))
	mock.ExpectBegin()
	mock.ExpectExec("delete from jobradar.job_search_hits").
		WithArgs("xing", "120").
		WillReturnResult(pgxmock.NewResult("DELETE", 42))
	mock.ExpectExec("delete from jobradar.job_details").
		WithArgs("xing", "120").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec("delete from jobradar.jobs").
		WithArgs("xing", "120").
		WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectCommit()

	candidates, err := jobs.CountHardDeleteCandidates(ctx, "xing", 120)
	require.NoError(t, err)
	require.Equal(t, int64(5), candidates)

	counts, err := jobs.ApplyHardDelete(ctx, "xing", 120)
	require.NoError(t, err)
	require.Equal(t, store.HardDeleteCounts{Hits: 42, Details: 4, Jobs: 5}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreHardDeleteRollsBackOnMidCascadeFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	jobs := NewJobStore(mock)

	mock.ExpectBegin()
	mock.ExpectExec("delete from jobradar.job_search_hits").
		WithArgs("xing", "120").
		WillReturnResult(pgxmock.NewResult("DELETE", 42))
	mock.ExpectExec("delete from jobradar.job_details").
		WithArgs("xing", "120").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err = jobs.ApplyHardDelete(context.Background(), "xing", 120)
	require.Error(t, err)
	require.Contains(t, err.Error(), "delete details")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreListJobsScansNullableColumns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	jobs := NewJobStore(mock)
	seen := time.Unix(1700000000, 0).UTC()
	stale := seen.Add(-time.Hour)
	reason := "not_seen_window"

	mock.ExpectQuery("select platform, job_id").
		WithArgs("linkedin", false, 10, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"platform", "job_id", "job_url", "first_seen_at", "last_seen_at",
			"last_seen_search_run_id", "is_active", "stale_since_at", "expired_at", "expire_reason",
		}).
			AddRow("linkedin", "1", "https://example.com/1", seen, seen, nil, true, nil, nil, nil).
			AddRow("linkedin", "2", "https://example.com/2", seen, seen, nil, false, &stale, &stale, &reason))

	got, err := jobs.ListJobs(context.Background(), "linkedin", false, 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].IsActive)
	require.Nil(t, got[0].ExpireReason)
	require.False(t, got[1].IsActive)
	require.NotNil(t, got[1].ExpireReason)
	require.Equal(t, "not_seen_window", *got[1].ExpireReason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreListDetailCandidates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	jobs := NewJobStore(mock)
	seen := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("select j.platform, j.job_id").
		WithArgs("stepstone", "7", 50).
		WillReturnRows(pgxmock.NewRows([]string{
			"platform", "job_id", "job_url", "first_seen_at", "last_seen_at",
			"last_seen_search_run_id", "is_active", "stale_since_at", "expired_at", "expire_reason",
		}).AddRow("stepstone", "abc", "https://www.stepstone.de/abc", seen, seen, nil, true, nil, nil, nil))

	got, err := jobs.ListDetailCandidates(context.Background(), "stepstone", 7, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "abc", got[0].JobID)
	require.NoError(t, mock.ExpectationsWereMet())
}
