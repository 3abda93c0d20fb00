package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
)

func TestStartRunOpensLedgerRow(t *testing.T) {
	st, mock := newStoreWithMock(t)
	id := uuid.MustParse("018f34a2-6c1d-7e6f-b1b0-8d1f6f4f4a11")
	started := time.Date(2025, time.February, 3, 9, 30, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scrape_runs (category,id,started_at,status) VALUES ($1,$2,$3,$4) ON CONFLICT (id) DO NOTHING")).
		WithArgs("recall", id.String(), started, "running").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.StartRun(context.Background(), id, notices.CategoryRecall, started))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishRunWritesTerminalCounts(t *testing.T) {
	st, mock := newStoreWithMock(t)
	id := uuid.MustParse("018f34a2-6c1d-7e6f-b1b0-8d1f6f4f4a11")
	finished := time.Date(2025, time.February, 3, 9, 45, 0, 0, time.UTC)
	sum := notices.CategorySummary{
		Category:  notices.CategoryRecall,
		Status:    notices.RunCompleted,
		Finished:  finished,
		Succeeded: 5,
		Fallback:  1,
		Failed:    2,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE scrape_runs SET error_message = $1, failed = $2, fallback = $3, finished_at = $4, status = $5, succeeded = $6 WHERE id = $7")).
		WithArgs(nil, 2, 1, finished, "completed", 5, id.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, st.FinishRun(context.Background(), id, sum))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishRunRecordsFailureReason(t *testing.T) {
	st, mock := newStoreWithMock(t)
	id := uuid.MustParse("018f34a2-6c1d-7e6f-b1b0-8d1f6f4f4a12")
	finished := time.Date(2025, time.February, 3, 9, 45, 0, 0, time.UTC)
	sum := notices.CategorySummary{
		Category:  notices.CategoryAlert,
		Status:    notices.RunFailed,
		Finished:  finished,
		ErrorText: "listing fetch failed",
	}

	mock.ExpectExec("UPDATE scrape_runs SET").
		WithArgs("listing fetch failed", 0, 0, finished, "failed", 0, id.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, st.FinishRun(context.Background(), id, sum))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentRunsListsNewestFirst(t *testing.T) {
	st, mock := newStoreWithMock(t)
	newest := uuid.MustParse("018f34a2-6c1d-7e6f-b1b0-8d1f6f4f4a13")
	oldest := uuid.MustParse("018f34a2-6c1d-7e6f-b1b0-8d1f6f4f4a14")
	startedNew := time.Date(2025, time.February, 4, 8, 0, 0, 0, time.UTC)
	startedOld := time.Date(2025, time.February, 3, 8, 0, 0, 0, time.UTC)
	finishedOld := startedOld.Add(12 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, category, started_at, finished_at, status, succeeded, fallback, failed, error_message FROM scrape_runs ORDER BY started_at DESC LIMIT 20")).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "category", "started_at", "finished_at", "status",
			"succeeded", "fallback", "failed", "error_message",
		}).
			AddRow(newest.String(), "recall", startedNew, (*time.Time)(nil), "running", 0, 0, 0, (*string)(nil)).
			AddRow(oldest.String(), "alert", startedOld, &finishedOld, "completed", 4, 1, 0, (*string)(nil)))

	runs, err := st.RecentRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, newest, runs[0].ID)
	assert.Equal(t, notices.CategoryRecall, runs[0].Category)
	assert.Equal(t, notices.RunRunning, runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)

	assert.Equal(t, oldest, runs[1].ID)
	assert.Equal(t, notices.RunCompleted, runs[1].Status)
	require.NotNil(t, runs[1].FinishedAt)
	assert.Equal(t, finishedOld, *runs[1].FinishedAt)
	assert.Equal(t, 4, runs[1].Succeeded)
	assert.Equal(t, 1, runs[1].Fallback)
}
