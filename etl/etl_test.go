package etl

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelterstat/config"
	"shelterstat/mart"
	"shelterstat/record"
)

type fakeStore struct {
	mu       sync.Mutex
	rows     []record.Flat
	last     time.Time
	lastErr  error
	storeErr error
}

func (f *fakeStore) UpsertRecords(_ context.Context, rows []record.Flat) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return 0, f.storeErr
	}
	f.rows = append(f.rows, rows...)
	return len(rows), nil
}

func (f *fakeStore) LatestCreatedAt(context.Context) (time.Time, error) {
	return f.last, f.lastErr
}

func mockConfig(records int) *config.Config {
	return &config.Config{
		MockData:          config.MockDataConfig{Enabled: true, Records: records, TimeRangeDays: 30, Seed: 42},
		DataRetentionDays: 90,
		Scheduler:         config.SchedulerConfig{Enabled: true, IntervalMinutes: 1, RefreshMart: true},
		Retention:         config.RetentionConfig{CleanupTime: "03:00"},
		SourceTable:       "inspections",
	}
}

func TestTransformRow(t *testing.T) {
	row, err := TransformRow([]byte(`{"ID":"abc"," Site_Code ":"PA0001","gab1_bat1_capacidade":150,"gmg_existe":true}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", row.Str(record.FieldID))
	assert.Equal(t, "PA0001", row.Str(record.FieldSiteCode))
	assert.Equal(t, 150.0, row.Num(record.BatteryKey(1, 1, record.BatCapacity)))
	assert.True(t, row.Bool(record.FieldGenerator))

	_, err = TransformRow([]byte(`{"site_code":"PA0001"}`))
	assert.Error(t, err, "rows need an id")

	_, err = TransformRow([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestExecuteTemplateQuery(t *testing.T) {
	q, err := executeTemplateQuery(DefaultRecordsQuery, map[string]interface{}{"Table": `field"app`, "Limit": 100})
	require.NoError(t, err)
	assert.Equal(t, `SELECT row_to_json(t)::text FROM "field""app" t WHERE t.created_at > $1 ORDER BY t.created_at LIMIT 100`, q)

	q, err = executeTemplateQuery(DefaultRecordsQuery, map[string]interface{}{"Table": "inspections", "Limit": 0})
	require.NoError(t, err)
	assert.NotContains(t, q, "LIMIT")

	_, err = executeTemplateQuery("{{ .Table", nil)
	assert.Error(t, err)
}

func TestMockGeneratorDeterministic(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := &config.MockDataConfig{Records: 50, TimeRangeDays: 10, Seed: 9}

	a := NewMockDataGenerator(cfg, now).Generate()
	b := NewMockDataGenerator(cfg, now).Generate()
	require.Len(t, a, 50)
	assert.Equal(t, a, b)

	for _, row := range a {
		created := row.Time(record.FieldCreatedAt)
		assert.False(t, created.After(now))
		assert.True(t, created.After(now.AddDate(0, 0, -11)))
		assert.Equal(t, row.Str(record.FieldSiteCode)[:2], row.Str(record.FieldStateUF))
	}
}

func TestMockGeneratorLeavesStaleCabinets(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := NewMockDataGenerator(&config.MockDataConfig{Records: 300, Seed: 42}, now).Generate()

	stale := 0
	for _, row := range rows {
		total := int(row.Num(record.FieldTotalCabinets))
		if _, ok := row[record.CabinetKey(total+1, record.CabClimatization)]; ok {
			stale++
		}
		rec := record.FromFlat(row)
		assert.Len(t, rec.DeclaredCabinets(), total)
	}
	assert.Positive(t, stale)
}

func TestIngestMock(t *testing.T) {
	store := &fakeStore{}
	d := NewDataIngestor(mockConfig(20), store)

	stats, err := d.Ingest(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "mock", stats.Source)
	assert.Equal(t, 20, stats.Fetched)
	assert.Equal(t, 20, stats.Stored)
	assert.Len(t, store.rows, 20)
}

func TestIngestErrors(t *testing.T) {
	t.Run("watermark", func(t *testing.T) {
		d := NewDataIngestor(mockConfig(5), &fakeStore{lastErr: errors.New("locked")})
		_, err := d.Ingest(context.Background(), time.Time{})
		assert.ErrorContains(t, err, "locked")
	})

	t.Run("store", func(t *testing.T) {
		d := NewDataIngestor(mockConfig(5), &fakeStore{storeErr: errors.New("disk full")})
		stats, err := d.Ingest(context.Background(), time.Now())
		assert.ErrorContains(t, err, "disk full")
		assert.Equal(t, 5, stats.Fetched)
		assert.Zero(t, stats.Stored)
	})

	t.Run("source", func(t *testing.T) {
		cfg := mockConfig(5)
		cfg.MockData.Enabled = false
		d := NewDataIngestor(cfg, &fakeStore{})
		d.openSource = func(string) (*sql.DB, error) { return nil, errors.New("no route") }

		stats, err := d.Ingest(context.Background(), time.Time{})
		assert.ErrorContains(t, err, "no route")
		assert.Equal(t, "postgres", stats.Source)
	})
}

type fakeMart struct{ calls int }

func (f *fakeMart) Refresh(context.Context) (mart.MartStats, error) {
	f.calls++
	return mart.MartStats{}, nil
}

type fakeRetention struct{ calls []int }

func (f *fakeRetention) CleanupOldData(_ context.Context, days int) (map[string]int64, error) {
	f.calls = append(f.calls, days)
	return map[string]int64{"inspection_records": 0}, nil
}

func TestSchedulerCleanupDue(t *testing.T) {
	s := NewScheduler(mockConfig(1), nil, nil, nil)
	now := time.Date(2026, 5, 10, 4, 0, 0, 0, time.UTC)

	assert.True(t, s.cleanupDue(now), "never cleaned")

	s.lastCleanup = time.Date(2026, 5, 10, 3, 30, 0, 0, time.UTC)
	assert.False(t, s.cleanupDue(now), "already served today's slot")

	s.lastCleanup = time.Date(2026, 5, 9, 3, 30, 0, 0, time.UTC)
	assert.True(t, s.cleanupDue(now))

	s.cfg.Retention.CleanupTime = "late"
	assert.False(t, s.cleanupDue(now))
}

func TestSchedulerRunJob(t *testing.T) {
	cfg := mockConfig(10)
	store := &fakeStore{}
	refresher := &fakeMart{}
	retention := &fakeRetention{}
	s := NewScheduler(cfg, NewDataIngestor(cfg, store), refresher, retention)
	s.now = func() time.Time { return time.Date(2026, 5, 10, 4, 0, 0, 0, time.UTC) }

	s.RunJob(context.Background())
	s.RunJob(context.Background())

	assert.Len(t, store.rows, 20)
	assert.Equal(t, 2, refresher.calls)
	assert.Equal(t, []int{90}, retention.calls, "cleanup runs once per slot")
}

func TestSchedulerDisabled(t *testing.T) {
	cfg := mockConfig(1)
	cfg.Scheduler.Enabled = false
	s := NewScheduler(cfg, nil, nil, nil)
	s.Start(context.Background())
	s.Stop()
	assert.Nil(t, s.cancel)
}
