package analysis

import (
	"fmt"
	"time"

	"shelterstat/record"
	"shelterstat/risk"
)

// StatusFilter narrows the row-level lists after aggregation.
type StatusFilter string

const (
	StatusAll StatusFilter = "all"
	StatusOK  StatusFilter = "ok"
	StatusNOK StatusFilter = "nok"
)

// AllRegions is the region sentinel meaning "no region filter".
const AllRegions = "all"

// DateRange bounds createdAt inclusively. A zero bound is open.
type DateRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// Filters is the dashboard filter state. The zero value selects everything.
type Filters struct {
	DateRange  DateRange    `json:"dateRange"`
	Technician string       `json:"technician"`
	StateUF    string       `json:"stateUf"`
	Status     StatusFilter `json:"status"`
}

// ParseStatusFilter validates a status query value. Empty means all.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch StatusFilter(s) {
	case "", StatusAll:
		return StatusAll, nil
	case StatusOK, StatusNOK:
		return StatusFilter(s), nil
	}
	return "", fmt.Errorf("invalid status filter %q (use all, ok or nok)", s)
}

func (f Filters) regionActive() bool {
	return f.StateUF != "" && f.StateUF != AllRegions
}

// Match reports whether rec passes every pre-aggregation filter.
func (f Filters) Match(rec *record.InspectionRecord) bool {
	if f.Technician != "" &&
		!record.ContainsFold(rec.TechnicianName, f.Technician) &&
		!record.ContainsFold(rec.TechnicianID, f.Technician) {
		return false
	}
	if f.regionActive() && rec.StateUF != f.StateUF {
		return false
	}
	if !f.DateRange.From.IsZero() && rec.CreatedAt.Before(f.DateRange.From) {
		return false
	}
	if !f.DateRange.To.IsZero() && rec.CreatedAt.After(f.DateRange.To) {
		return false
	}
	return true
}

// ApplyFilters returns the records matching f. Technician is a case-insensitive
// substring over name or id, region is exact, and dates are inclusive. The
// status filter is not applied here.
func ApplyFilters(records []record.InspectionRecord, f Filters) []record.InspectionRecord {
	out := make([]record.InspectionRecord, 0, len(records))
	for i := range records {
		if f.Match(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}

// ApplyStatus narrows each row list by its own correctness predicate: sites by
// hasProblems, batteries by physical state, ACs by status. Cabinets pass
// through unchanged.
func ApplyStatus(rows Rows, status StatusFilter) Rows {
	if status == "" || status == StatusAll {
		return rows
	}
	wantOK := status == StatusOK

	out := Rows{
		Sites:     make([]SiteInfo, 0, len(rows.Sites)),
		Batteries: make([]BatteryInfo, 0, len(rows.Batteries)),
		ACs:       make([]ACInfo, 0, len(rows.ACs)),
		Cabinets:  rows.Cabinets,
	}
	for _, s := range rows.Sites {
		if !s.HasProblems == wantOK {
			out.Sites = append(out.Sites, s)
		}
	}
	for _, b := range rows.Batteries {
		if risk.StateOK(b.State) == wantOK {
			out.Batteries = append(out.Batteries, b)
		}
	}
	for _, a := range rows.ACs {
		if wantOK && a.Status == record.StatusOK || !wantOK && a.Status == record.StatusNOK {
			out.ACs = append(out.ACs, a)
		}
	}
	return out
}
