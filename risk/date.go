// Package risk holds the pure classifiers behind the battery dashboards:
// manufacture-date parsing, age, obsolescence tiers, autonomy tiers and
// physical-state buckets.
package risk

import (
	"regexp"
	"strings"
	"time"
)

// DefaultReferenceYear is the year ages are measured against. It is fixed, not
// wall-clock, so historical reports keep their classification.
const DefaultReferenceYear = 2026

var dateFormats = []struct {
	pattern *regexp.Regexp
	layout  string
}{
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), "2006-01-02"},
	{regexp.MustCompile(`^\d{1,2}/\d{4}$`), "1/2006"},
	{regexp.MustCompile(`^\d{4}$`), "2006"},
}

// ParseManufactureDate accepts YYYY-MM-DD, MM/YYYY or YYYY, tried in that
// order. The second return is false for empty or unrecognized input.
func ParseManufactureDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, f := range dateFormats {
		if !f.pattern.MatchString(s) {
			continue
		}
		t, err := time.Parse(f.layout, s)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// AgeYears is referenceYear minus the manufacture year, never negative.
// Unparseable dates have age 0.
func AgeYears(raw string, referenceYear int) int {
	t, ok := ParseManufactureDate(raw)
	if !ok {
		return 0
	}
	age := referenceYear - t.Year()
	if age < 0 {
		return 0
	}
	return age
}
