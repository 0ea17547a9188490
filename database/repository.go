package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shelterstat/logger"
	"shelterstat/record"
)

type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying stores to the mart builder.
func (r *Repository) DB() *DB {
	return r.db
}

// UpsertRecords stores wide rows keyed by id; a later row with the same id
// replaces the earlier one. Rows without an id are skipped.
func (r *Repository) UpsertRecords(ctx context.Context, rows []record.Flat) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	// INSERT OR REPLACE cannot see two rows with one key in a single statement
	// batch, so collapse duplicates first.
	latest := make(map[string]record.Flat, len(rows))
	order := make([]string, 0, len(rows))
	for _, row := range rows {
		id := row.Str(record.FieldID)
		if id == "" {
			continue
		}
		if _, seen := latest[id]; !seen {
			order = append(order, id)
		}
		latest[id] = row
	}
	if skipped := len(rows) - len(latest); skipped > 0 {
		logger.Debugf("UpsertRecords: %d rows without id or duplicated", skipped)
	}

	tx, err := r.db.Analytics.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO inspection_records
			(id, site_code, state_uf, technician_id, created_at, payload, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, id := range order {
		row := latest[id]
		payload, err := json.Marshal(row)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal record %s: %w", id, err)
		}
		var createdAt any
		if t := row.Time(record.FieldCreatedAt); !t.IsZero() {
			createdAt = t.UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			id,
			row.Str(record.FieldSiteCode),
			row.Str(record.FieldStateUF),
			row.Str(record.FieldTechnicianID),
			createdAt,
			string(payload),
			now,
		); err != nil {
			return 0, fmt.Errorf("failed to insert row %d (%s): %w", i, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit records: %w", err)
	}
	return len(order), nil
}

// FetchFlat returns up to limit stored rows, newest visit first. limit <= 0
// means no limit.
func (r *Repository) FetchFlat(ctx context.Context, limit int) ([]record.Flat, error) {
	query := `SELECT payload FROM inspection_records ORDER BY created_at DESC NULLS LAST, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Analytics.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []record.Flat
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		var f record.Flat
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			logger.Warnf("Skipping undecodable record payload: %v", err)
			continue
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FetchRecords returns up to limit normalized records, newest first.
func (r *Repository) FetchRecords(ctx context.Context, limit int) ([]record.InspectionRecord, error) {
	flats, err := r.FetchFlat(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]record.InspectionRecord, 0, len(flats))
	for _, f := range flats {
		out = append(out, record.FromFlat(f))
	}
	return out, nil
}

// DataVersion changes whenever the stored record set changes.
func (r *Repository) DataVersion(ctx context.Context) (string, error) {
	var count int64
	var last sql.NullTime
	err := r.db.Analytics.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(ingested_at) FROM inspection_records`,
	).Scan(&count, &last)
	if err != nil {
		return "", fmt.Errorf("failed to read data version: %w", err)
	}
	if !last.Valid {
		return fmt.Sprintf("%d:0", count), nil
	}
	return fmt.Sprintf("%d:%d", count, last.Time.UnixNano()), nil
}

// LatestCreatedAt is the newest visit timestamp stored, used as the
// incremental ingest watermark. Zero when the store is empty.
func (r *Repository) LatestCreatedAt(ctx context.Context) (time.Time, error) {
	var last sql.NullTime
	if err := r.db.Analytics.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM inspection_records`,
	).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("failed to read watermark: %w", err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}

// CountRecords returns the number of stored records.
func (r *Repository) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.Analytics.QueryRowContext(ctx, `SELECT COUNT(*) FROM inspection_records`).Scan(&n)
	return n, err
}

// CreateReportJob inserts a job row.
func (r *Repository) CreateReportJob(ctx context.Context, jobID, kind, status string) error {
	now := time.Now().UTC()
	_, err := r.db.App.ExecContext(ctx,
		"INSERT INTO report_jobs (job_id, kind, status, progress, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?)",
		jobID, kind, status, now, now)
	return err
}

func (r *Repository) UpdateReportJob(ctx context.Context, jobID, status, cacheKey, errorMsg string, progress int) error {
	res, err := r.db.App.ExecContext(ctx,
		"UPDATE report_jobs SET status = ?, cache_key = ?, error_message = ?, progress = ?, updated_at = ? WHERE job_id = ?",
		status, cacheKey, errorMsg, progress, time.Now().UTC(), jobID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetReportJob(ctx context.Context, jobID string) (*JobStatus, error) {
	var job JobStatus
	var cacheKey, errorMsg sql.NullString
	err := r.db.App.QueryRowContext(ctx,
		"SELECT job_id, kind, status, cache_key, error_message, progress, created_at, updated_at FROM report_jobs WHERE job_id = ?",
		jobID,
	).Scan(&job.JobID, &job.Kind, &job.Status, &cacheKey, &errorMsg, &job.Progress, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	job.CacheKey = cacheKey.String
	job.ErrorMessage = errorMsg.String
	return &job, nil
}

// SaveReportCache stores results under cacheKey for ttlHours.
func (r *Repository) SaveReportCache(ctx context.Context, cacheKey string, requestParams interface{}, results json.RawMessage, ttlHours int) error {
	paramsJSON, err := json.Marshal(requestParams)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	if ttlHours <= 0 {
		ttlHours = 24
	}
	now := time.Now().UTC()
	expiresAt := now.Add(time.Duration(ttlHours) * time.Hour)
	_, err = r.db.App.ExecContext(ctx,
		"INSERT OR REPLACE INTO report_cache (cache_key, request_params, results, created_at, expires_at) VALUES (?, ?, ?, ?, ?)",
		cacheKey, string(paramsJSON), []byte(results), now, expiresAt)
	return err
}

// GetReportCache returns an unexpired cache entry or ErrNotFound.
func (r *Repository) GetReportCache(ctx context.Context, cacheKey string) (*ReportResults, error) {
	var res ReportResults
	var blob []byte
	err := r.db.App.QueryRowContext(ctx,
		"SELECT results, created_at FROM report_cache WHERE cache_key = ? AND expires_at > ?",
		cacheKey, time.Now().UTC(),
	).Scan(&blob, &res.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	res.Results = blob
	return &res, nil
}

// CleanupExpired removes expired cache entries.
func (r *Repository) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := r.db.App.ExecContext(ctx, "DELETE FROM report_cache WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CleanupOldData applies retention: records older than retentionDays, expired
// cache entries, and jobs and logs older than 30 days.
func (r *Repository) CleanupOldData(ctx context.Context, retentionDays int) (map[string]int64, error) {
	deleted := make(map[string]int64)
	if retentionDays <= 0 {
		return deleted, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	housekeeping := time.Now().UTC().AddDate(0, 0, -30)

	res, err := r.db.Analytics.ExecContext(ctx, "DELETE FROM inspection_records WHERE created_at < ?", cutoff)
	if err != nil {
		return deleted, fmt.Errorf("failed to delete old records: %w", err)
	}
	deleted["inspection_records"], _ = res.RowsAffected()

	n, err := r.CleanupExpired(ctx)
	if err != nil {
		return deleted, fmt.Errorf("failed to delete expired cache: %w", err)
	}
	deleted["report_cache"] = n

	for table, column := range map[string]string{"report_jobs": "created_at", "report_logs": "request_time"} {
		res, err := r.db.App.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s < ?", table, column), housekeeping)
		if err != nil {
			return deleted, fmt.Errorf("failed to clean %s: %w", table, err)
		}
		deleted[table], _ = res.RowsAffected()
	}
	return deleted, nil
}

// LogReport appends a dashboard computation to report_logs.
func (r *Repository) LogReport(ctx context.Context, l ReportLog) error {
	if l.RequestTime.IsZero() {
		l.RequestTime = time.Now().UTC()
	}
	_, err := r.db.App.ExecContext(ctx,
		"INSERT INTO report_logs (request_time, filters, record_count, site_count, duration_ms, cache_hit, status) VALUES (?, ?, ?, ?, ?, ?, ?)",
		l.RequestTime, l.Filters, l.RecordCount, l.SiteCount, l.DurationMs, l.CacheHit, l.Status)
	return err
}

// GetRecentReportLogs returns the newest logs first.
func (r *Repository) GetRecentReportLogs(ctx context.Context, limit int) ([]ReportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.App.QueryContext(ctx,
		"SELECT id, request_time, filters, record_count, site_count, duration_ms, cache_hit, status FROM report_logs ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []ReportLog{}
	for rows.Next() {
		var l ReportLog
		var filters, status sql.NullString
		if err := rows.Scan(&l.ID, &l.RequestTime, &filters, &l.RecordCount, &l.SiteCount, &l.DurationMs, &l.CacheHit, &status); err != nil {
			return nil, err
		}
		l.Filters = filters.String
		l.Status = status.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
