package mart

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shelterstat/analysis"
	"shelterstat/database"
	"shelterstat/logger"
	"shelterstat/risk"
)

// MartBuilder materializes battery and cabinet rows into DuckDB for ad-hoc SQL.
type MartBuilder struct {
	db     *database.DB
	source analysis.RecordSource
	opts   func() analysis.Options
}

// MartStats holds statistics about the refreshed mart
type MartStats struct {
	BatteryRows     int64  `json:"battery_rows"`
	CabinetRows     int64  `json:"cabinet_rows"`
	MinDate         string `json:"min_date,omitempty"`
	MaxDate         string `json:"max_date,omitempty"`
	CriticalCount   int64  `json:"critical_count"`
	ReplacementDue  int64  `json:"replacement_due"`
	CriticoCabinets int64  `json:"critico_cabinets"`
}

// NewMartBuilder creates a new mart builder. opts is read on every refresh
// so engine setting changes apply.
func NewMartBuilder(db *database.DB, source analysis.RecordSource, opts func() analysis.Options) *MartBuilder {
	if opts == nil {
		opts = analysis.DefaultOptions
	}
	return &MartBuilder{db: db, source: source, opts: opts}
}

// Refresh rebuilds both mart tables from every stored record.
func (m *MartBuilder) Refresh(ctx context.Context) (stats MartStats, err error) {
	start := time.Now()

	records, err := m.source.FetchRecords(ctx, 0)
	if err != nil {
		return MartStats{}, fmt.Errorf("failed to fetch records: %w", err)
	}
	res := analysis.Aggregate(records, analysis.Filters{}, m.opts())

	tx, err := m.db.Analytics.BeginTx(ctx, nil)
	if err != nil {
		return MartStats{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	if err = m.writeBatteries(ctx, tx, res.Batteries, start); err != nil {
		return MartStats{}, err
	}
	if err = m.writeCabinets(ctx, tx, res.Cabinets, start); err != nil {
		return MartStats{}, err
	}

	stats = MartStats{
		BatteryRows: int64(len(res.Batteries)),
		CabinetRows: int64(len(res.Cabinets)),
	}
	for _, b := range res.Batteries {
		if b.ObsolescenceTier == risk.ObsolescenceCritical {
			stats.CriticalCount++
		}
		if risk.NeedsReplacement(b.State, b.ObsolescenceTier) {
			stats.ReplacementDue++
		}
	}
	for _, c := range res.Cabinets {
		if c.AutonomyTier == risk.AutonomyCritico {
			stats.CriticoCabinets++
		}
	}
	var minDate, maxDate time.Time
	for _, s := range res.Sites {
		if s.CreatedAt.IsZero() {
			continue
		}
		if minDate.IsZero() || s.CreatedAt.Before(minDate) {
			minDate = s.CreatedAt
		}
		if s.CreatedAt.After(maxDate) {
			maxDate = s.CreatedAt
		}
	}
	if !minDate.IsZero() {
		stats.MinDate = minDate.Format("2006-01-02")
		stats.MaxDate = maxDate.Format("2006-01-02")
	}

	logger.WithFields(map[string]interface{}{
		"batteries": stats.BatteryRows,
		"cabinets":  stats.CabinetRows,
		"elapsed":   time.Since(start).Round(time.Millisecond),
	}).Info("Mart refresh completed")
	return stats, nil
}

func (m *MartBuilder) writeBatteries(ctx context.Context, tx *sql.Tx, rows []analysis.BatteryInfo, at time.Time) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM battery_mart`); err != nil {
		return fmt.Errorf("failed to clear battery_mart: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO battery_mart (
			site_code, state_uf, cabinet, bank, chemistry, manufacturer, capacity_ah,
			manufacture_date, battery_state, age_years, obsolescence_tier, needs_replacement, refreshed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare battery insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range rows {
		if _, err := stmt.ExecContext(ctx,
			b.SiteCode, b.Region, b.Cabinet, b.Bank, string(b.Chemistry), b.Manufacturer, b.CapacityAh,
			b.ManufactureDate, b.State, b.AgeYears, string(b.ObsolescenceTier),
			risk.NeedsReplacement(b.State, b.ObsolescenceTier), at.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert battery %s/%d/%d: %w", b.SiteCode, b.Cabinet, b.Bank, err)
		}
	}
	return nil
}

func (m *MartBuilder) writeCabinets(ctx context.Context, tx *sql.Tx, rows []analysis.CabinetInfo, at time.Time) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cabinet_mart`); err != nil {
		return fmt.Errorf("failed to clear cabinet_mart: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cabinet_mart (
			site_code, state_uf, cabinet, banks, total_ah, autonomy_hours,
			autonomy_tier, obsolescence_tier, has_generator, refreshed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cabinet insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range rows {
		if _, err := stmt.ExecContext(ctx,
			c.SiteCode, c.Region, c.Cabinet, c.Banks, c.TotalAh, c.AutonomyHours,
			string(c.AutonomyTier), string(c.ObsolescenceTier), c.HasGenerator, at.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert cabinet %s/%d: %w", c.SiteCode, c.Cabinet, err)
		}
	}
	return nil
}

// TierCount is one row of a grouped mart query.
type TierCount struct {
	Region string `json:"region"`
	Tier   string `json:"tier"`
	Count  int64  `json:"count"`
}

// GetMartStats returns obsolescence tier counts per region from battery_mart.
func (m *MartBuilder) GetMartStats(ctx context.Context) ([]TierCount, error) {
	rows, err := m.db.Analytics.QueryContext(ctx, `
		SELECT state_uf, obsolescence_tier, COUNT(*)
		FROM battery_mart
		GROUP BY state_uf, obsolescence_tier
		ORDER BY state_uf, obsolescence_tier
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query battery_mart: %w", err)
	}
	defer rows.Close()

	out := []TierCount{}
	for rows.Next() {
		var tc TierCount
		var region sql.NullString
		if err := rows.Scan(&region, &tc.Tier, &tc.Count); err != nil {
			return nil, err
		}
		tc.Region = region.String
		out = append(out, tc)
	}
	return out, rows.Err()
}
