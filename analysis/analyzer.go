package analysis

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"shelterstat/database"
	"shelterstat/jobs"
	"shelterstat/logger"
	"shelterstat/metrics"
	"shelterstat/record"
)

// RecordSource supplies the bounded record collection a pass runs over.
type RecordSource interface {
	FetchRecords(ctx context.Context, limit int) ([]record.InspectionRecord, error)
	DataVersion(ctx context.Context) (string, error)
}

// ReportStore persists report jobs, cached results and request logs.
type ReportStore interface {
	CreateReportJob(ctx context.Context, jobID, kind, status string) error
	UpdateReportJob(ctx context.Context, jobID, status, cacheKey, errorMsg string, progress int) error
	GetReportJob(ctx context.Context, jobID string) (*database.JobStatus, error)
	SaveReportCache(ctx context.Context, cacheKey string, requestParams interface{}, results json.RawMessage, ttlHours int) error
	GetReportCache(ctx context.Context, cacheKey string) (*database.ReportResults, error)
	LogReport(ctx context.Context, l database.ReportLog) error
}

// ErrReportNotReady is returned when results are requested for a job that
// has not completed.
var ErrReportNotReady = errors.New("report not ready")

// Analyzer serves dashboards over the stored records. Results are memoized
// in the report store, keyed on the filters, the engine options and the
// record set version.
type Analyzer struct {
	source     RecordSource
	store      ReportStore
	workerPool *jobs.WorkerPool

	mu            sync.RWMutex
	opts          Options
	cacheTTLHours int
	maxRecords    int
}

// NewAnalyzer wires the service. store and workerPool may be nil: without a
// store nothing is cached, without a pool RequestReport fails.
func NewAnalyzer(source RecordSource, store ReportStore, workerPool *jobs.WorkerPool, opts Options, cacheTTLHours, maxRecords int) *Analyzer {
	return &Analyzer{
		source:        source,
		store:         store,
		workerPool:    workerPool,
		opts:          opts.withDefaults(),
		cacheTTLHours: cacheTTLHours,
		maxRecords:    maxRecords,
	}
}

// Options returns the engine constants in use.
func (a *Analyzer) Options() Options {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.opts
}

// SetOptions swaps the engine constants. Cached results computed under the
// old constants are not reused because the options are part of the key.
func (a *Analyzer) SetOptions(opts Options) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opts = opts.withDefaults()
}

// PendingReports is the number of queued report jobs.
func (a *Analyzer) PendingReports() int {
	if a.workerPool == nil {
		return 0
	}
	return a.workerPool.QueueSize()
}

type cacheKeyInput struct {
	Filters Filters `json:"filters"`
	Options Options `json:"options"`
	Version string  `json:"version"`
}

func generateCacheKey(f Filters, opts Options, version string) string {
	data, _ := json.Marshal(cacheKeyInput{Filters: normalizeFilters(f), Options: opts, Version: version})
	return fmt.Sprintf("%x", md5.Sum(data))
}

// normalizeFilters maps equivalent filter values onto one cache key.
func normalizeFilters(f Filters) Filters {
	if f.Status == "" {
		f.Status = StatusAll
	}
	if f.StateUF == "" {
		f.StateUF = AllRegions
	}
	f.Technician = record.Fold(f.Technician)
	return f
}

// Dashboard returns the aggregation for f. The second return reports whether
// it came from the cache.
func (a *Analyzer) Dashboard(ctx context.Context, f Filters) (*Result, bool, error) {
	start := time.Now()
	opts := a.Options()

	version, err := a.source.DataVersion(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read data version: %w", err)
	}
	cacheKey := generateCacheKey(f, opts, version)

	if res, ok := a.lookup(ctx, cacheKey); ok {
		metrics.RecordCacheLookup(true)
		a.logReport(ctx, f, 0, res, start, true, database.JobCompleted)
		return res, true, nil
	}
	metrics.RecordCacheLookup(false)

	res, n, err := a.compute(ctx, f, opts)
	if err != nil {
		a.logReport(ctx, f, 0, nil, start, false, database.JobFailed)
		return nil, false, err
	}
	a.save(ctx, cacheKey, f, res)
	a.logReport(ctx, f, n, res, start, false, database.JobCompleted)
	return res, false, nil
}

func (a *Analyzer) compute(ctx context.Context, f Filters, opts Options) (*Result, int, error) {
	records, err := a.source.FetchRecords(ctx, a.maxRecords)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch records: %w", err)
	}
	return Aggregate(records, f, opts), len(records), nil
}

func (a *Analyzer) lookup(ctx context.Context, cacheKey string) (*Result, bool) {
	if a.store == nil {
		return nil, false
	}
	cached, err := a.store.GetReportCache(ctx, cacheKey)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			logger.Warnf("Report cache lookup failed: %v", err)
		}
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(cached.Results, &res); err != nil {
		logger.Warnf("Discarding undecodable cache entry %s: %v", cacheKey, err)
		return nil, false
	}
	return &res, true
}

func (a *Analyzer) save(ctx context.Context, cacheKey string, f Filters, res *Result) {
	if a.store == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		logger.Warnf("Failed to encode result for cache: %v", err)
		return
	}
	if err := a.store.SaveReportCache(ctx, cacheKey, f, data, a.cacheTTLHours); err != nil {
		logger.Warnf("Failed to save report cache: %v", err)
	}
}

func (a *Analyzer) logReport(ctx context.Context, f Filters, records int, res *Result, start time.Time, hit bool, status string) {
	if a.store == nil {
		return
	}
	filters, _ := json.Marshal(f)
	entry := database.ReportLog{
		RequestTime: start.UTC(),
		Filters:     string(filters),
		RecordCount: records,
		DurationMs:  time.Since(start).Milliseconds(),
		CacheHit:    hit,
		Status:      status,
	}
	if res != nil {
		entry.SiteCount = res.Stats.TotalSites
	}
	if err := a.store.LogReport(ctx, entry); err != nil {
		logger.Debugf("Failed to log report: %v", err)
	}
}

// DrillDown computes the dashboard for f and projects selector out of it.
func (a *Analyzer) DrillDown(ctx context.Context, f Filters, selector, scope string) (Projection, error) {
	name, _ := ParseSelector(selector)
	if !KnownSelector(name) {
		return Projection{}, fmt.Errorf("%w: %q", ErrUnknownSelector, name)
	}
	res, _, err := a.Dashboard(ctx, f)
	if err != nil {
		return Projection{}, err
	}
	return Project(res, selector, scope)
}

// RequestReport queues an aggregation job and returns its id. When the
// result is already cached the job is created completed.
func (a *Analyzer) RequestReport(ctx context.Context, f Filters) (string, error) {
	if a.store == nil || a.workerPool == nil {
		return "", errors.New("report jobs are not configured")
	}
	opts := a.Options()
	version, err := a.source.DataVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read data version: %w", err)
	}
	cacheKey := generateCacheKey(f, opts, version)
	jobID := uuid.New().String()

	if _, ok := a.lookup(ctx, cacheKey); ok {
		if err := a.store.CreateReportJob(ctx, jobID, "dashboard", database.JobCompleted); err != nil {
			return "", fmt.Errorf("failed to create job: %w", err)
		}
		if err := a.store.UpdateReportJob(ctx, jobID, database.JobCompleted, cacheKey, "", 100); err != nil {
			return "", fmt.Errorf("failed to update job: %w", err)
		}
		return jobID, nil
	}

	if err := a.store.CreateReportJob(ctx, jobID, "dashboard", database.JobPending); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	err = a.workerPool.Submit(jobs.Job{
		ID:   jobID,
		Kind: "dashboard",
		Execute: func(ctx context.Context) error {
			return a.executeReport(ctx, jobID, cacheKey, f, opts)
		},
	})
	if err != nil {
		a.store.UpdateReportJob(ctx, jobID, database.JobFailed, "", err.Error(), 0)
		return "", err
	}
	return jobID, nil
}

// executeReport runs the aggregation for a queued job.
func (a *Analyzer) executeReport(ctx context.Context, jobID, cacheKey string, f Filters, opts Options) error {
	fail := func(err error, progress int) error {
		if uerr := a.store.UpdateReportJob(ctx, jobID, database.JobFailed, "", err.Error(), progress); uerr != nil {
			logger.Warnf("Failed to mark job %s failed: %v", jobID, uerr)
		}
		return err
	}

	if err := a.store.UpdateReportJob(ctx, jobID, database.JobRunning, "", "", 10); err != nil {
		return err
	}

	start := time.Now()
	res, n, err := a.compute(ctx, f, opts)
	if err != nil {
		return fail(err, 10)
	}
	if err := a.store.UpdateReportJob(ctx, jobID, database.JobRunning, "", "", 75); err != nil {
		return err
	}

	data, err := json.Marshal(res)
	if err != nil {
		return fail(fmt.Errorf("failed to encode result: %w", err), 75)
	}
	if err := a.store.SaveReportCache(ctx, cacheKey, f, data, a.cacheTTLHours); err != nil {
		return fail(fmt.Errorf("failed to save report: %w", err), 75)
	}
	a.logReport(ctx, f, n, res, start, false, database.JobCompleted)

	return a.store.UpdateReportJob(ctx, jobID, database.JobCompleted, cacheKey, "", 100)
}

// ReportStatus returns the job row.
func (a *Analyzer) ReportStatus(ctx context.Context, jobID string) (*database.JobStatus, error) {
	if a.store == nil {
		return nil, database.ErrNotFound
	}
	return a.store.GetReportJob(ctx, jobID)
}

// ReportResult returns the result of a completed job. It fails with
// ErrReportNotReady while the job runs and database.ErrNotFound when the job
// or its cached result is gone.
func (a *Analyzer) ReportResult(ctx context.Context, jobID string) (*Result, error) {
	job, err := a.ReportStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case database.JobCompleted:
	case database.JobFailed:
		return nil, fmt.Errorf("report %s failed: %s", jobID, job.ErrorMessage)
	default:
		return nil, ErrReportNotReady
	}
	res, ok := a.lookup(ctx, job.CacheKey)
	if !ok {
		return nil, database.ErrNotFound
	}
	return res, nil
}
