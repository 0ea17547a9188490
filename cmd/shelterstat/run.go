package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"shelterstat/analysis"
	"shelterstat/record"
)

// loadRecords reads a JSON array of flat rows, as exported by the field app.
func loadRecords(path string) ([]record.InspectionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	var rows []record.Flat
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	out := make([]record.InspectionRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, record.FromFlat(row))
	}
	return out, nil
}

func (f filterFlags) filters() (analysis.Filters, error) {
	status, err := analysis.ParseStatusFilter(f.status)
	if err != nil {
		return analysis.Filters{}, err
	}
	out := analysis.Filters{
		Technician: f.technician,
		StateUF:    strings.ToUpper(f.uf),
		Status:     status,
	}
	if f.from != "" {
		if out.DateRange.From, err = time.Parse("2006-01-02", f.from); err != nil {
			return analysis.Filters{}, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if f.to != "" {
		to, err := time.Parse("2006-01-02", f.to)
		if err != nil {
			return analysis.Filters{}, fmt.Errorf("invalid --to: %w", err)
		}
		out.DateRange.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	return out, nil
}

func (f filterFlags) options() analysis.Options {
	return analysis.Options{ReferenceYear: f.refYear, LoadCurrentA: f.loadA}
}

func aggregate(path string, flags filterFlags) (*analysis.Result, error) {
	records, err := loadRecords(path)
	if err != nil {
		return nil, err
	}
	filters, err := flags.filters()
	if err != nil {
		return nil, err
	}
	return analysis.Aggregate(records, filters, flags.options()), nil
}

func runSummary(path string, flags filterFlags) error {
	res, err := aggregate(path, flags)
	if err != nil {
		return err
	}
	if flags.format == "text" {
		printSummary(os.Stdout, res.Stats)
		return nil
	}
	return encode(os.Stdout, flags.format, res.Stats)
}

func runDrilldown(path, selector, scope string, flags filterFlags) error {
	res, err := aggregate(path, flags)
	if err != nil {
		return err
	}
	p, err := analysis.Project(res, selector, scope)
	if err != nil {
		return err
	}
	if flags.format == "text" {
		printProjection(os.Stdout, p)
		return nil
	}
	return encode(os.Stdout, flags.format, p)
}
