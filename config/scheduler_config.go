package config

import (
	"fmt"
	"time"
)

// SchedulerConfig holds scheduler settings
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled" json:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes" json:"interval_minutes"`
	// RefreshMart rebuilds the battery mart after each ingest.
	RefreshMart bool `mapstructure:"refresh_mart" json:"refresh_mart"`
}

// Interval returns the ingest period, never shorter than a minute.
func (s SchedulerConfig) Interval() time.Duration {
	if s.IntervalMinutes < 1 {
		return time.Minute
	}
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// NextCleanup returns the next occurrence of the "15:04" cleanup time after
// now.
func (r RetentionConfig) NextCleanup(now time.Time) (time.Time, error) {
	at := r.CleanupTime
	if at == "" {
		at = "03:00"
	}
	t, err := time.Parse("15:04", at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid retention.cleanup_time %q: %w", at, err)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}
