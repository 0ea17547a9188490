package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shelterstat/analysis"
	"shelterstat/config"
	"shelterstat/database"
	"shelterstat/etl"
	"shelterstat/logger"
	"shelterstat/mart"
	"shelterstat/record"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db          *database.DB
	repo        *database.Repository
	cfg         *config.Config
	martBuilder *mart.MartBuilder
	analyzer    *analysis.Analyzer
	ingestor    *etl.DataIngestor
}

// NewHandler creates a new handler instance
func NewHandler(db *database.DB, repo *database.Repository, cfg *config.Config, martBuilder *mart.MartBuilder, analyzer *analysis.Analyzer, ingestor *etl.DataIngestor) *Handler {
	return &Handler{
		db:          db,
		repo:        repo,
		cfg:         cfg,
		martBuilder: martBuilder,
		analyzer:    analyzer,
		ingestor:    ingestor,
	}
}

// HealthCheck returns API health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.db.Analytics.PingContext(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "analytics database health check failed")
		return
	}
	if err := h.db.App.PingContext(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "app database health check failed")
		return
	}

	stats := make(map[string]int64)
	tables := []struct {
		name string
		db   *sql.DB
	}{
		{"inspection_records", h.db.Analytics},
		{"battery_mart", h.db.Analytics},
		{"cabinet_mart", h.db.Analytics},
		{"report_cache", h.db.App},
		{"report_jobs", h.db.App},
	}
	for _, t := range tables {
		var count int64
		if err := t.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.name).Scan(&count); err != nil {
			count = 0
		}
		stats[t.name] = count
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"stats":           stats,
		"pending_reports": h.analyzer.PendingReports(),
	})
}

// IngestData pulls new records from the source system. The body is optional;
// without "since" the ingest resumes from the newest stored visit.
func (h *Handler) IngestData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Since string `json:"since"`
	}
	if err := decodeOptionalBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var since time.Time
	if req.Since != "" {
		t, err := time.Parse(time.RFC3339Nano, req.Since)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid since format (RFC3339)")
			return
		}
		since = t
	}

	stats, err := h.ingestor.Ingest(r.Context(), since)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("ingestion failed: %v", err))
		return
	}

	total, err := h.repo.CountRecords(r.Context())
	if err != nil {
		logger.Warnf("Failed to count records after ingest: %v", err)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "success",
		"ingest":        stats,
		"total_records": total,
	})
}

// RefreshMart rebuilds the battery and cabinet marts
func (h *Handler) RefreshMart(w http.ResponseWriter, r *http.Request) {
	stats, err := h.martBuilder.Refresh(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("mart refresh failed: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"stats":  stats,
	})
}

// GetMartStats returns battery obsolescence counts per region from the mart.
func (h *Handler) GetMartStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.martBuilder.GetMartStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": counts})
}

// CleanupData removes records and report state past retention
func (h *Handler) CleanupData(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.repo.CleanupOldData(r.Context(), h.cfg.DataRetentionDays)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("cleanup failed: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "success",
		"deleted":        deleted,
		"retention_days": h.cfg.DataRetentionDays,
	})
}

// GetReportLogs lists recent dashboard computations.
func (h *Handler) GetReportLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > 1000 {
		respondError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}
	logs, err := h.repo.GetRecentReportLogs(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": logs})
}

// configView is the client-visible part of the configuration.
type configView struct {
	Engine    config.EngineConfig    `json:"engine"`
	Regions   []string               `json:"regions"`
	Scheduler config.SchedulerConfig `json:"scheduler"`
	Analysis  struct {
		DefaultPageSize int `json:"default_page_size"`
		MaxPageSize     int `json:"max_page_size"`
		MaxRecords      int `json:"max_records"`
	} `json:"analysis"`
	RetentionDays int  `json:"retention_days"`
	MockData      bool `json:"mock_data"`
}

// ConfigUpdateRequest represents the body for config updates
type ConfigUpdateRequest struct {
	Engine *struct {
		ReferenceYear   int     `json:"reference_year" validate:"gte=1990,lte=2200"`
		LoadCurrentA    float64 `json:"load_current_a" validate:"gt=0"`
		DailyWindowDays int     `json:"daily_window_days" validate:"gte=1,lte=366"`
	} `json:"engine,omitempty"`
	Regions []string `json:"regions,omitempty" validate:"omitempty,max=64,dive,len=2"`
}

// GetConfig returns the current configuration
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	view := configView{
		Engine:        h.cfg.EngineSettings(),
		Regions:       h.cfg.Regions,
		Scheduler:     h.cfg.Scheduler,
		RetentionDays: h.cfg.DataRetentionDays,
		MockData:      h.cfg.MockData.Enabled,
	}
	view.Analysis.DefaultPageSize = h.cfg.Analysis.DefaultPageSize
	view.Analysis.MaxPageSize = h.cfg.Analysis.MaxPageSize
	view.Analysis.MaxRecords = h.cfg.Analysis.MaxRecords
	respondJSON(w, http.StatusOK, view)
}

// UpdateConfig updates engine constants and the region list. New engine
// constants apply to the next dashboard; cached results under the old
// constants are keyed apart and are not served.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	for i, uf := range req.Regions {
		req.Regions[i] = strings.ToUpper(uf)
		if !record.ValidRegion(req.Regions[i]) {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown region %q", uf))
			return
		}
	}

	if req.Engine != nil {
		e := config.EngineConfig{
			ReferenceYear:   req.Engine.ReferenceYear,
			LoadCurrentA:    req.Engine.LoadCurrentA,
			DailyWindowDays: req.Engine.DailyWindowDays,
		}
		if err := h.cfg.UpdateEngineSettings(e); err != nil {
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to update engine settings: %v", err))
			return
		}
		h.analyzer.SetOptions(EngineOptions(e))
	}
	if req.Regions != nil {
		if err := h.cfg.UpdateRegions(req.Regions); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to update region list")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// EngineOptions converts the configured engine constants.
func EngineOptions(e config.EngineConfig) analysis.Options {
	return analysis.Options{
		ReferenceYear: e.ReferenceYear,
		LoadCurrentA:  e.LoadCurrentA,
		DailyWindow:   e.DailyWindowDays,
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warnf("Failed to encode response: %v", err)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// decodeOptionalBody decodes a JSON body when one was sent.
func decodeOptionalBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

// statusFor maps service errors to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, analysis.ErrUnknownSelector):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrReportNotReady):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
