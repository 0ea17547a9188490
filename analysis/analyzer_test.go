package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelterstat/database"
	"shelterstat/jobs"
	"shelterstat/record"
)

type fakeSource struct {
	mu      sync.Mutex
	records []record.InspectionRecord
	version string
	fetches int
	err     error
}

func (s *fakeSource) FetchRecords(ctx context.Context, limit int) ([]record.InspectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func (s *fakeSource) DataVersion(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, nil
}

func (s *fakeSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

type fakeStore struct {
	mu    sync.Mutex
	jobs  map[string]database.JobStatus
	cache map[string]json.RawMessage
	logs  []database.ReportLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[string]database.JobStatus{}, cache: map[string]json.RawMessage{}}
}

func (s *fakeStore) CreateReportJob(ctx context.Context, jobID, kind, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID] = database.JobStatus{JobID: jobID, Kind: kind, Status: status}
	return nil
}

func (s *fakeStore) UpdateReportJob(ctx context.Context, jobID, status, cacheKey, errorMsg string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return database.ErrNotFound
	}
	j.Status, j.ErrorMessage, j.Progress = status, errorMsg, progress
	if cacheKey != "" {
		j.CacheKey = cacheKey
	}
	s.jobs[jobID] = j
	return nil
}

func (s *fakeStore) GetReportJob(ctx context.Context, jobID string) (*database.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &j, nil
}

func (s *fakeStore) SaveReportCache(ctx context.Context, cacheKey string, requestParams interface{}, results json.RawMessage, ttlHours int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[cacheKey] = results
	return nil
}

func (s *fakeStore) GetReportCache(ctx context.Context, cacheKey string) (*database.ReportResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.cache[cacheKey]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &database.ReportResults{Results: data}, nil
}

func (s *fakeStore) LogReport(ctx context.Context, l database.ReportLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, l)
	return nil
}

func analyzerFixture() (*fakeSource, *fakeStore) {
	src := &fakeSource{
		version: "v1",
		records: []record.InspectionRecord{
			visit("1", "PA", day(2025, 5, 1), false, cabinet(bank("Chumbo-ácido", "2019", "OK", 150))),
			visit("2", "AM", day(2025, 5, 2), true, cabinet(bank("Lítio", "2024", "estufada", 150))),
		},
	}
	return src, newFakeStore()
}

func TestDashboardCachesByVersion(t *testing.T) {
	src, store := analyzerFixture()
	a := NewAnalyzer(src, store, nil, testOpts, 24, 0)
	ctx := context.Background()

	res, cached, err := a.Dashboard(ctx, Filters{})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, res.Stats.TotalSites)

	again, cached, err := a.Dashboard(ctx, Filters{StateUF: AllRegions, Status: StatusAll})
	require.NoError(t, err)
	assert.True(t, cached, "equivalent filters share a cache entry")
	assert.Equal(t, res.Stats, again.Stats)
	assert.Equal(t, 1, src.fetchCount())

	src.mu.Lock()
	src.version = "v2"
	src.mu.Unlock()
	_, cached, err = a.Dashboard(ctx, Filters{})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, src.fetchCount())
	assert.Len(t, store.logs, 3)
}

func TestSetOptionsChangesCacheKey(t *testing.T) {
	src, store := analyzerFixture()
	a := NewAnalyzer(src, store, nil, testOpts, 24, 0)
	ctx := context.Background()

	_, _, err := a.Dashboard(ctx, Filters{})
	require.NoError(t, err)

	a.SetOptions(Options{ReferenceYear: 2030})
	assert.Equal(t, 30.0, a.Options().LoadCurrentA)
	res, cached, err := a.Dashboard(ctx, Filters{})
	require.NoError(t, err)
	assert.False(t, cached)
	// The 2024 lithium bank is six years old in 2030.
	assert.Equal(t, ObsolescenceCounts{Warning: 1, Critical: 1}, res.Stats.Obsolescence)
}

func TestDashboardWithoutStore(t *testing.T) {
	src, _ := analyzerFixture()
	a := NewAnalyzer(src, nil, nil, testOpts, 24, 0)

	_, cached, err := a.Dashboard(context.Background(), Filters{})
	require.NoError(t, err)
	assert.False(t, cached)
	_, cached, _ = a.Dashboard(context.Background(), Filters{})
	assert.False(t, cached)

	_, err = a.RequestReport(context.Background(), Filters{})
	assert.Error(t, err)
	assert.Zero(t, a.PendingReports())
}

func TestDashboardSourceError(t *testing.T) {
	src, store := analyzerFixture()
	src.err = errors.New("store offline")
	a := NewAnalyzer(src, store, nil, testOpts, 24, 0)

	_, _, err := a.Dashboard(context.Background(), Filters{})
	assert.ErrorContains(t, err, "store offline")
	require.Len(t, store.logs, 1)
	assert.Equal(t, database.JobFailed, store.logs[0].Status)
}

func TestDrillDownRejectsUnknownSelectorFirst(t *testing.T) {
	src, store := analyzerFixture()
	a := NewAnalyzer(src, store, nil, testOpts, 24, 0)

	_, err := a.DrillDown(context.Background(), Filters{}, "bogus:PA", "")
	assert.ErrorIs(t, err, ErrUnknownSelector)
	assert.Zero(t, src.fetchCount())

	p, err := a.DrillDown(context.Background(), Filters{}, "bateria-estufada", "")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Count)
}

func TestReportLifecycle(t *testing.T) {
	src, store := analyzerFixture()
	pool := jobs.NewWorkerPool(2)
	defer pool.Stop()
	a := NewAnalyzer(src, store, pool, testOpts, 24, 0)
	ctx := context.Background()

	jobID, err := a.RequestReport(ctx, Filters{StateUF: "PA"})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		st, err := a.ReportStatus(ctx, jobID)
		return err == nil && st.Done()
	}, 5*time.Second, 10*time.Millisecond)

	st, err := a.ReportStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, database.JobCompleted, st.Status)
	assert.Equal(t, 100, st.Progress)

	res, err := a.ReportResult(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.TotalSites)

	// The same filters are now cached; the job is born completed.
	second, err := a.RequestReport(ctx, Filters{StateUF: "PA"})
	require.NoError(t, err)
	st, err = a.ReportStatus(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, database.JobCompleted, st.Status)
	assert.Equal(t, 1, src.fetchCount())
}

func TestReportResultStates(t *testing.T) {
	src, store := analyzerFixture()
	a := NewAnalyzer(src, store, nil, testOpts, 24, 0)
	ctx := context.Background()

	_, err := a.ReportResult(ctx, "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)

	require.NoError(t, store.CreateReportJob(ctx, "running", "dashboard", database.JobRunning))
	_, err = a.ReportResult(ctx, "running")
	assert.ErrorIs(t, err, ErrReportNotReady)

	require.NoError(t, store.CreateReportJob(ctx, "failed", "dashboard", database.JobPending))
	require.NoError(t, store.UpdateReportJob(ctx, "failed", database.JobFailed, "", "boom", 10))
	_, err = a.ReportResult(ctx, "failed")
	assert.ErrorContains(t, err, "boom")

	require.NoError(t, store.CreateReportJob(ctx, "expired", "dashboard", database.JobPending))
	require.NoError(t, store.UpdateReportJob(ctx, "expired", database.JobCompleted, "gone", "", 100))
	_, err = a.ReportResult(ctx, "expired")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestCacheKeyNormalization(t *testing.T) {
	k1 := generateCacheKey(Filters{Technician: "ANA"}, testOpts, "v1")
	k2 := generateCacheKey(Filters{Technician: " ana ", StateUF: AllRegions, Status: StatusAll}, testOpts, "v1")
	k3 := generateCacheKey(Filters{Technician: "ana"}, testOpts, "v2")
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Len(t, k1, 32)
}
