package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelterstat/analysis"
	"shelterstat/config"
	"shelterstat/database"
	"shelterstat/etl"
	"shelterstat/jobs"
	"shelterstat/mart"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()

	db, err := database.Initialize("", ":memory:")
	require.NoError(t, err)
	t.Cleanup(db.Close)
	repo := database.NewRepository(db)

	cfg := &config.Config{
		Engine:            config.EngineConfig{ReferenceYear: 2026, LoadCurrentA: 30, DailyWindowDays: 14},
		Analysis:          config.AnalysisConfig{DefaultPageSize: 5, MaxPageSize: 20, MaxRecords: 1000},
		MockData:          config.MockDataConfig{Enabled: true, Records: 40, TimeRangeDays: 30, Seed: 3},
		Regions:           []string{"PA", "AM"},
		DataRetentionDays: 730,
		Presets:           config.NewPresetManager(filepath.Join(t.TempDir(), "presets.json")),
	}
	require.NoError(t, cfg.Presets.Load())

	pool := jobs.NewWorkerPool(2)
	t.Cleanup(pool.Stop)

	analyzer := analysis.NewAnalyzer(repo, repo, pool, EngineOptions(cfg.Engine), 1, cfg.Analysis.MaxRecords)
	martBuilder := mart.NewMartBuilder(db, repo, analyzer.Options)
	ingestor := etl.NewDataIngestor(cfg, repo)

	r := SetupRouter(NewHandler(db, repo, cfg, martBuilder, analyzer, ingestor))
	r.Use(LoggingMiddleware())
	return r
}

func do(t *testing.T, r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func seeded(t *testing.T) *mux.Router {
	t.Helper()
	r := newTestRouter(t)
	w := do(t, r, http.MethodPost, "/api/ingest", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return r
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "pending_reports")

	w = do(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIngestAndMart(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/ingest", `{"since":"yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/ingest", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	ingest := body["ingest"].(map[string]interface{})
	assert.EqualValues(t, 40, ingest["stored"])
	assert.EqualValues(t, 40, body["total_records"])

	w = do(t, r, http.MethodPost, "/api/mart/refresh", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/mart/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["data"])

	w = do(t, r, http.MethodPost, "/api/cleanup", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 730, decode(t, w)["retention_days"])
}

func TestDashboardCaching(t *testing.T) {
	r := seeded(t)

	w := do(t, r, http.MethodGet, "/api/dashboard?status=all", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	body := decode(t, w)
	assert.Contains(t, body, "rows")
	stats := body["stats"].(map[string]interface{})
	assert.Positive(t, stats["totalSites"])

	// An equivalent filter hits the cache.
	w = do(t, r, http.MethodGet, "/api/dashboard?rows=false", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.NotContains(t, decode(t, w), "rows")

	w = do(t, r, http.MethodGet, "/api/logs?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 2)
}

func TestDashboardRejectsBadFilters(t *testing.T) {
	r := newTestRouter(t)

	for _, q := range []string{
		"status=maybe",
		"uf=PAR",
		"from=2026-13-01",
		"from=2026-05-02&to=2026-05-01",
	} {
		w := do(t, r, http.MethodGet, "/api/dashboard?"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}

	// A single day is a valid range.
	w := do(t, r, http.MethodGet, "/api/dashboard?from=2026-05-01&to=2026-05-01&uf=all", "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/logs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDrillDown(t *testing.T) {
	r := seeded(t)

	w := do(t, r, http.MethodGet, "/api/drilldown/nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/drilldown/sites-all?page_size=100", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/drilldown/sites-all", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 40, body["total"])
	assert.EqualValues(t, 5, body["page_size"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "sites", data["kind"])
	assert.Len(t, data["sites"], 5)

	// Past the last page the list is empty but the total stays.
	w = do(t, r, http.MethodGet, "/api/drilldown/sites-all?page=99", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.EqualValues(t, 40, body["total"])
	assert.NotContains(t, body["data"], "sites")

	// Region scopes match regardless of case.
	w = do(t, r, http.MethodGet, "/api/drilldown/uf?scope=PA", "")
	require.Equal(t, http.StatusOK, w.Code)
	upper := decode(t, w)["total"]
	w = do(t, r, http.MethodGet, "/api/drilldown/uf:pa", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, upper, decode(t, w)["total"])

	w = do(t, r, http.MethodGet, "/api/selectors", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["selectors"], "chumbo-uf")
}

func TestPaginate(t *testing.T) {
	p := analysis.Projection{Kind: analysis.KindBatteries, Batteries: make([]analysis.BatteryInfo, 7), Count: 7}

	assert.Len(t, paginate(p, 1, 5).Batteries, 5)
	assert.Len(t, paginate(p, 2, 5).Batteries, 2)
	assert.Empty(t, paginate(p, 3, 5).Batteries)
	assert.Equal(t, 7, paginate(p, 3, 5).Count)
}

func TestPresets(t *testing.T) {
	r := seeded(t)

	w := do(t, r, http.MethodPost, "/api/presets", `{"filters":{"stateUf":"PA"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "name is required")

	w = do(t, r, http.MethodPost, "/api/presets", `{"name":"bad","filters":{"status":"broken"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/presets", `{"id":"mine","name":"Para NOK","filters":{"stateUf":"PA","status":"nok"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)
	assert.NotEqual(t, "mine", id)

	w = do(t, r, http.MethodGet, "/api/presets", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)

	w = do(t, r, http.MethodGet, "/api/dashboard?rows=false&preset="+id, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	filters := decode(t, w)["filters"].(map[string]interface{})
	assert.Equal(t, "PA", filters["stateUf"])

	// Explicit parameters override the preset.
	w = do(t, r, http.MethodGet, "/api/dashboard?rows=false&uf=AM&preset="+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AM", decode(t, w)["filters"].(map[string]interface{})["stateUf"])

	w = do(t, r, http.MethodGet, "/api/dashboard?preset=missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodDelete, "/api/presets/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodDelete, "/api/presets/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportLifecycle(t *testing.T) {
	r := seeded(t)

	w := do(t, r, http.MethodGet, "/api/reports/unknown/status", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/api/reports", `{"status":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/reports", "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	jobID := decode(t, w)["job_id"].(string)
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		w := do(t, r, http.MethodGet, "/api/reports/"+jobID+"/status", "")
		return w.Code == http.StatusOK && decode(t, w)["status"] == database.JobCompleted
	}, 5*time.Second, 20*time.Millisecond)

	w = do(t, r, http.MethodGet, "/api/reports/"+jobID+"/results", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w)["result"], "stats")

	w = do(t, r, http.MethodGet, "/api/reports/"+jobID+"/charts", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "charts_"+jobID)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}

func TestConfigEndpoints(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2026, body["engine"].(map[string]interface{})["reference_year"])
	assert.Equal(t, true, body["mock_data"])

	for _, bad := range []string{
		`not json`,
		`{"engine":{"reference_year":2026,"load_current_a":0,"daily_window_days":14}}`,
		`{"engine":{"reference_year":1800,"load_current_a":30,"daily_window_days":14}}`,
		`{"regions":["PAR"]}`,
		`{"regions":["PA","XX"]}`,
	} {
		w := do(t, r, http.MethodPut, "/api/config", bad)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestStreamDashboard(t *testing.T) {
	r := seeded(t)

	w := do(t, r, http.MethodPost, "/api/dashboard/stream", `{"regions":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, r, http.MethodPost, "/api/dashboard/stream", `{"regions":["PA","XX"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/dashboard/stream", `{"regions":["pa","AM","RR"],"filters":{"status":"all"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

	seen := map[string]bool{}
	sc := bufio.NewScanner(bytes.NewReader(w.Body.Bytes()))
	for sc.Scan() {
		var line StreamResult
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		assert.Empty(t, line.Error)
		require.NotNil(t, line.Stats)
		seen[line.Region] = true
	}
	assert.Equal(t, map[string]bool{"PA": true, "AM": true, "RR": true}, seen)
}
