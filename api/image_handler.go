package api

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"shelterstat/charting"
)

// ExportCharts renders the charts of a completed report job into a zip.
func (h *Handler) ExportCharts(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	res, err := h.analyzer.ReportResult(r.Context(), jobID)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	files, err := charting.NewGenerator().Bundle(res.Stats, res.Rows)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("chart rendering failed: %v", err))
		return
	}
	if len(files) == 0 {
		respondError(w, http.StatusNotFound, "No data available for charting")
		return
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	zipBuf := new(bytes.Buffer)
	zipWriter := zip.NewWriter(zipBuf)
	for _, name := range names {
		f, err := zipWriter.Create(name)
		if err == nil {
			_, err = f.Write(files[name])
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("zip failed: %v", err))
			return
		}
	}
	if err := zipWriter.Close(); err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("zip failed: %v", err))
		return
	}

	filename := fmt.Sprintf("charts_%s_%s.zip", jobID, time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set("Content-Length", strconv.Itoa(zipBuf.Len()))
	w.Write(zipBuf.Bytes())
}
