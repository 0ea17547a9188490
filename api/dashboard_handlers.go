package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"shelterstat/analysis"
	"shelterstat/config"
)

const dateLayout = "2006-01-02"

// filtersFromQuery reads the dashboard filter from query parameters.
func filtersFromQuery(r *http.Request) config.PresetFilters {
	q := r.URL.Query()
	return config.PresetFilters{
		From:       q.Get("from"),
		To:         q.Get("to"),
		Technician: q.Get("technician"),
		StateUF:    q.Get("uf"),
		Status:     q.Get("status"),
	}
}

// overlay returns base with every non-empty field of top applied.
func overlay(base, top config.PresetFilters) config.PresetFilters {
	if top.From != "" {
		base.From = top.From
	}
	if top.To != "" {
		base.To = top.To
	}
	if top.Technician != "" {
		base.Technician = top.Technician
	}
	if top.StateUF != "" {
		base.StateUF = top.StateUF
	}
	if top.Status != "" {
		base.Status = top.Status
	}
	return base
}

// toFilters validates p and converts it. The end date covers its whole day.
func toFilters(p config.PresetFilters) (analysis.Filters, error) {
	if err := validateStruct(p); err != nil {
		return analysis.Filters{}, err
	}

	f := analysis.Filters{Technician: strings.TrimSpace(p.Technician)}
	if uf := strings.TrimSpace(p.StateUF); uf != "" && uf != analysis.AllRegions {
		f.StateUF = strings.ToUpper(uf)
	}
	status, err := analysis.ParseStatusFilter(p.Status)
	if err != nil {
		return analysis.Filters{}, err
	}
	f.Status = status

	if p.From != "" {
		f.DateRange.From, _ = time.Parse(dateLayout, p.From)
	}
	if p.To != "" {
		to, _ := time.Parse(dateLayout, p.To)
		f.DateRange.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if !f.DateRange.From.IsZero() && !f.DateRange.To.IsZero() && f.DateRange.From.After(f.DateRange.To) {
		return analysis.Filters{}, fmt.Errorf("from must not be after to")
	}
	return f, nil
}

// requestFilters resolves the filter of a GET request. A preset query
// parameter supplies defaults that explicit parameters override.
func (h *Handler) requestFilters(r *http.Request) (analysis.Filters, int, error) {
	p := filtersFromQuery(r)
	if id := r.URL.Query().Get("preset"); id != "" {
		preset, ok := h.cfg.Presets.Get(id)
		if !ok {
			return analysis.Filters{}, http.StatusNotFound, fmt.Errorf("preset %s not found", id)
		}
		p = overlay(preset.Filters, p)
	}
	f, err := toFilters(p)
	if err != nil {
		return analysis.Filters{}, http.StatusBadRequest, err
	}
	return f, http.StatusOK, nil
}

// GetDashboard returns panel stats and row lists for the filter.
// ?rows=false leaves the row lists out.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	f, code, err := h.requestFilters(r)
	if err != nil {
		respondError(w, code, err.Error())
		return
	}

	res, cached, err := h.analyzer.Dashboard(r.Context(), f)
	if err != nil {
		respondError(w, statusFor(err), fmt.Sprintf("dashboard failed: %v", err))
		return
	}

	if cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	body := map[string]interface{}{
		"filters": f,
		"cached":  cached,
		"stats":   res.Stats,
	}
	if r.URL.Query().Get("rows") != "false" {
		body["rows"] = res.Rows
	}
	respondJSON(w, http.StatusOK, body)
}

// GetSelectors lists the drill-down vocabulary.
func (h *Handler) GetSelectors(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"selectors": analysis.Selectors()})
}

// GetDrillDown returns one page of the rows behind a KPI.
func (h *Handler) GetDrillDown(w http.ResponseWriter, r *http.Request) {
	selector := mux.Vars(r)["selector"]
	f, code, err := h.requestFilters(r)
	if err != nil {
		respondError(w, code, err.Error())
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", h.cfg.Analysis.DefaultPageSize)
	if page < 1 || pageSize < 1 || (h.cfg.Analysis.MaxPageSize > 0 && pageSize > h.cfg.Analysis.MaxPageSize) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid page or page_size (max %d)", h.cfg.Analysis.MaxPageSize))
		return
	}

	p, err := h.analyzer.DrillDown(r.Context(), f, selector, r.URL.Query().Get("scope"))
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":      paginate(p, page, pageSize),
		"page":      page,
		"page_size": pageSize,
		"total":     p.Count,
	})
}

// paginate cuts the projection's row list to one page. Count keeps the total.
func paginate(p analysis.Projection, page, size int) analysis.Projection {
	lo := (page - 1) * size
	hi := lo + size
	bounds := func(n int) (int, int) {
		if lo > n {
			return n, n
		}
		if hi > n {
			return lo, n
		}
		return lo, hi
	}
	switch p.Kind {
	case analysis.KindSites:
		a, b := bounds(len(p.Sites))
		p.Sites = p.Sites[a:b]
	case analysis.KindBatteries:
		a, b := bounds(len(p.Batteries))
		p.Batteries = p.Batteries[a:b]
	case analysis.KindACs:
		a, b := bounds(len(p.ACs))
		p.ACs = p.ACs[a:b]
	case analysis.KindCabinets:
		a, b := bounds(len(p.Cabinets))
		p.Cabinets = p.Cabinets[a:b]
	}
	return p
}

// RequestReport queues a dashboard computation
func (h *Handler) RequestReport(w http.ResponseWriter, r *http.Request) {
	var req config.PresetFilters
	if err := decodeOptionalBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	f, err := toFilters(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := h.analyzer.RequestReport(r.Context(), f)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create report job: %v", err))
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": jobID,
		"status": "accepted",
	})
}

// GetReportStatus returns the status of a report job
func (h *Handler) GetReportStatus(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	status, err := h.analyzer.ReportStatus(r.Context(), jobID)
	if err != nil {
		respondError(w, statusFor(err), fmt.Sprintf("failed to get job status: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// GetReportResults returns the result of a completed report job
func (h *Handler) GetReportResults(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	res, err := h.analyzer.ReportResult(r.Context(), jobID)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"result": res,
	})
}

// ListPresets returns the saved filters.
func (h *Handler) ListPresets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": h.cfg.Presets.List()})
}

// CreatePreset saves a named filter.
func (h *Handler) CreatePreset(w http.ResponseWriter, r *http.Request) {
	var p config.Preset
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p.ID = ""
	p.CreatedAt = time.Time{}
	if err := validateStruct(p); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := toFilters(p.Filters); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.cfg.Presets.Save(p)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save preset: %v", err))
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

// DeletePreset removes a saved filter.
func (h *Handler) DeletePreset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ok, err := h.cfg.Presets.Delete(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to delete preset: %v", err))
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "preset not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
