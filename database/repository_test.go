package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelterstat/record"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := Initialize("", ":memory:")
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return NewRepository(db)
}

func row(id, site, created string) record.Flat {
	return record.Flat{
		record.FieldID:        id,
		record.FieldSiteCode:  site,
		record.FieldStateUF:   site[:2],
		record.FieldCreatedAt: created,
	}
}

func TestUpsertRecordsCollapsesDuplicates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	n, err := repo.UpsertRecords(ctx, []record.Flat{
		row("a", "PA0001", "2026-03-01T10:00:00Z"),
		row("b", "AM0002", "2026-03-02T10:00:00Z"),
		row("a", "PA0009", "2026-03-03T10:00:00Z"),
		{record.FieldSiteCode: "XX0000"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := repo.CountRecords(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	// The later "a" row wins and is now the newest visit.
	flats, err := repo.FetchFlat(ctx, 0)
	require.NoError(t, err)
	require.Len(t, flats, 2)
	assert.Equal(t, "a", flats[0].Str(record.FieldID))
	assert.Equal(t, "PA0009", flats[0].Str(record.FieldSiteCode))

	// A second upsert replaces instead of duplicating.
	_, err = repo.UpsertRecords(ctx, []record.Flat{row("b", "AM0003", "2026-03-02T10:00:00Z")})
	require.NoError(t, err)
	count, err = repo.CountRecords(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestFetchRecordsLimitAndNormalize(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.UpsertRecords(ctx, []record.Flat{
		row("a", "PA0001", "2026-03-01T10:00:00Z"),
		row("b", "AM0002", "2026-03-02T10:00:00Z"),
		row("c", "MA0003", "2026-03-03T10:00:00Z"),
	})
	require.NoError(t, err)

	recs, err := repo.FetchRecords(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "MA0003", recs[0].SiteCode)
	assert.Equal(t, "AM0002", recs[1].SiteCode)
}

func TestDataVersionAndWatermark(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	v0, err := repo.DataVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0:0", v0)

	last, err := repo.LatestCreatedAt(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	_, err = repo.UpsertRecords(ctx, []record.Flat{
		row("a", "PA0001", "2026-03-01T10:00:00Z"),
		row("b", "AM0002", "2026-03-05T08:30:00Z"),
	})
	require.NoError(t, err)

	v1, err := repo.DataVersion(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, v0, v1)

	last, err = repo.LatestCreatedAt(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(time.Date(2026, 3, 5, 8, 30, 0, 0, time.UTC)), "got %v", last)
}

func TestReportJobLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateReportJob(ctx, "job-1", "dashboard", JobPending))

	job, err := repo.GetReportJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, JobPending, job.Status)
	assert.False(t, job.Done())

	require.NoError(t, repo.UpdateReportJob(ctx, "job-1", JobCompleted, "key", "", 100))
	job, err = repo.GetReportJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "key", job.CacheKey)
	assert.Equal(t, 100, job.Progress)
	assert.True(t, job.Done())

	_, err = repo.GetReportJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.UpdateReportJob(ctx, "missing", JobFailed, "", "x", 0), ErrNotFound)
}

func TestReportCacheTTL(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	payload := json.RawMessage(`{"sites":3}`)
	require.NoError(t, repo.SaveReportCache(ctx, "fresh", map[string]string{"uf": "PA"}, payload, 1))

	got, err := repo.GetReportCache(ctx, "fresh")
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(got.Results))

	_, err = repo.GetReportCache(ctx, "absent")
	assert.ErrorIs(t, err, ErrNotFound)

	// Age the entry past its expiry.
	_, err = repo.DB().App.Exec("UPDATE report_cache SET expires_at = ? WHERE cache_key = ?",
		time.Now().UTC().Add(-time.Minute), "fresh")
	require.NoError(t, err)

	_, err = repo.GetReportCache(ctx, "fresh")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := repo.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestCleanupOldData(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -40).Format(time.RFC3339)
	recent := time.Now().UTC().AddDate(0, 0, -1).Format(time.RFC3339)
	_, err := repo.UpsertRecords(ctx, []record.Flat{
		row("old", "PA0001", old),
		row("new", "PA0002", recent),
	})
	require.NoError(t, err)
	require.NoError(t, repo.LogReport(ctx, ReportLog{RequestTime: time.Now().UTC().AddDate(0, 0, -31), Status: JobCompleted}))
	require.NoError(t, repo.LogReport(ctx, ReportLog{Status: JobCompleted}))

	_, err = repo.CleanupOldData(ctx, 0)
	assert.Error(t, err)

	deleted, err := repo.CleanupOldData(ctx, 30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted["inspection_records"])
	assert.EqualValues(t, 1, deleted["report_logs"])

	count, err := repo.CountRecords(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestReportLogsNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i, status := range []string{JobCompleted, JobFailed, JobCompleted} {
		require.NoError(t, repo.LogReport(ctx, ReportLog{
			Filters:     `{"status":"all"}`,
			RecordCount: i,
			CacheHit:    i == 2,
			Status:      status,
		}))
	}

	logs, err := repo.GetRecentReportLogs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, 2, logs[0].RecordCount)
	assert.True(t, logs[0].CacheHit)
	assert.Equal(t, JobFailed, logs[1].Status)

	empty := newTestRepo(t)
	logs, err = empty.GetRecentReportLogs(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
}
