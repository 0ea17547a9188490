package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"shelterstat/analysis"
	"shelterstat/config"
	"shelterstat/logger"
	"shelterstat/record"
)

const maxStreamWorkers = 5

// StreamRequest asks for one dashboard per region.
type StreamRequest struct {
	Filters config.PresetFilters `json:"filters"`
	Regions []string             `json:"regions" validate:"required,min=1,max=64,dive,len=2"`
}

// StreamResult represents a single line in NDJSON stream
type StreamResult struct {
	Region string               `json:"region"`
	Cached bool                 `json:"cached,omitempty"`
	Stats  *analysis.PanelStats `json:"stats,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// StreamDashboard computes the requested regions concurrently and writes
// each region's panel stats as soon as it is ready (NDJSON).
func (h *Handler) StreamDashboard(w http.ResponseWriter, r *http.Request) {
	var req StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
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
	base, err := toFilters(req.Filters)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	numWorkers := maxStreamWorkers
	if len(req.Regions) < numWorkers {
		numWorkers = len(req.Regions)
	}

	regions := make(chan string, len(req.Regions))
	results := make(chan StreamResult, len(req.Regions))
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for region := range regions {
				f := base
				f.StateUF = region
				res, cached, err := h.analyzer.Dashboard(ctx, f)
				if err != nil {
					results <- StreamResult{Region: region, Error: err.Error()}
					continue
				}
				results <- StreamResult{Region: region, Cached: cached, Stats: &res.Stats}
			}
		}()
	}

	for _, region := range req.Regions {
		regions <- region
	}
	close(regions)
	go func() {
		wg.Wait()
		close(results)
	}()

	encoder := json.NewEncoder(w)
	for res := range results {
		if err := encoder.Encode(res); err != nil {
			// Client went away; workers stop through the request context.
			logger.Debugf("Stream encode error: %v", err)
			for range results {
			}
			return
		}
		flusher.Flush()
	}
}
