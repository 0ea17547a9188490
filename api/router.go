package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shelterstat/logger"
	"shelterstat/metrics"
)

// SetupRouter creates and configures the HTTP router
func SetupRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/api/health", h.HealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Data management endpoints
	r.HandleFunc("/api/ingest", h.IngestData).Methods("POST")
	r.HandleFunc("/api/mart/refresh", h.RefreshMart).Methods("POST")
	r.HandleFunc("/api/mart/stats", h.GetMartStats).Methods("GET")
	r.HandleFunc("/api/cleanup", h.CleanupData).Methods("POST")
	r.HandleFunc("/api/logs", h.GetReportLogs).Methods("GET")

	// Config Management
	r.HandleFunc("/api/config", h.GetConfig).Methods("GET")
	r.HandleFunc("/api/config", h.UpdateConfig).Methods("PUT")
	r.HandleFunc("/api/presets", h.ListPresets).Methods("GET")
	r.HandleFunc("/api/presets", h.CreatePreset).Methods("POST")
	r.HandleFunc("/api/presets/{id}", h.DeletePreset).Methods("DELETE")

	// Dashboard endpoints
	r.HandleFunc("/api/dashboard", h.GetDashboard).Methods("GET")
	r.HandleFunc("/api/dashboard/stream", h.StreamDashboard).Methods("POST")
	r.HandleFunc("/api/selectors", h.GetSelectors).Methods("GET")
	r.HandleFunc("/api/drilldown/{selector}", h.GetDrillDown).Methods("GET")

	reports := r.PathPrefix("/api/reports").Subrouter()
	reports.HandleFunc("", h.RequestReport).Methods("POST")
	reports.HandleFunc("/{jobId}/status", h.GetReportStatus).Methods("GET")
	reports.HandleFunc("/{jobId}/results", h.GetReportResults).Methods("GET")
	reports.HandleFunc("/{jobId}/charts", h.ExportCharts).Methods("GET")

	return r
}

// CORSMiddleware adds CORS headers
func CORSMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return handlers.CORS(
			handlers.AllowedOrigins([]string{"*"}),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
			handlers.ExposedHeaders([]string{"X-Cache", "Content-Disposition"}),
		)(next)
	}
}

// LoggingMiddleware logs HTTP requests and records request metrics under the
// matched route template.
func LoggingMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			metrics.RecordAPIRequest(r.Method, route, strconv.Itoa(wrapped.statusCode), duration)
			logger.WithFields(map[string]interface{}{
				"method":   r.Method,
				"uri":      r.RequestURI,
				"status":   wrapped.statusCode,
				"duration": duration.String(),
			}).Info("request")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
