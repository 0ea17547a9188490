package database

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a job, cache entry or record does not exist.
var ErrNotFound = errors.New("not found")

// Job states.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// JobStatus is one row of report_jobs.
type JobStatus struct {
	JobID        string    `json:"job_id"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	CacheKey     string    `json:"cache_key,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Progress     int       `json:"progress"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Done reports whether the job reached a terminal state.
func (j *JobStatus) Done() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// ReportResults is a cached aggregation result.
type ReportResults struct {
	Results   json.RawMessage `json:"results"`
	CreatedAt time.Time       `json:"created_at"`
}

// ReportLog records one dashboard computation
type ReportLog struct {
	ID          int64     `json:"id"`
	RequestTime time.Time `json:"request_time"`
	Filters     string    `json:"filters"`
	RecordCount int       `json:"record_count"`
	SiteCount   int       `json:"site_count"`
	DurationMs  int64     `json:"duration_ms"`
	CacheHit    bool      `json:"cache_hit"`
	Status      string    `json:"status"`
}
