package etl

import (
	"context"
	"sync"
	"time"

	"shelterstat/config"
	"shelterstat/logger"
	"shelterstat/mart"
)

// Retention is the cleanup side of the record store.
type Retention interface {
	CleanupOldData(ctx context.Context, retentionDays int) (map[string]int64, error)
}

// MartRefresher rebuilds derived tables after an ingest.
type MartRefresher interface {
	Refresh(ctx context.Context) (mart.MartStats, error)
}

// Scheduler handles periodic tasks
type Scheduler struct {
	cfg         *config.Config
	ingestor    *DataIngestor
	martBuilder MartRefresher
	retention   Retention

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastCleanup time.Time
	now         func() time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.Config, ingestor *DataIngestor, martBuilder MartRefresher, retention Retention) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		ingestor:    ingestor,
		martBuilder: martBuilder,
		retention:   retention,
		now:         time.Now,
	}
}

// Start begins the scheduling loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.Scheduler.Enabled {
		logger.Info("Scheduler is disabled by config.")
		return
	}

	interval := s.cfg.Scheduler.Interval()
	logger.Infof("Starting Scheduler. Interval: %v (Cleanup at %s)", interval, s.cfg.Retention.CleanupTime)

	ctx, s.cancel = context.WithCancel(ctx)
	ticker := time.NewTicker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunJob(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the scheduler and waits for a running job to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
}

// RunJob executes one ingest, mart refresh and, when due, retention cleanup.
func (s *Scheduler) RunJob(ctx context.Context) {
	logger.Info("[Scheduler] Starting scheduled ingestion...")

	stats, err := s.ingestor.Ingest(ctx, time.Time{})
	if err != nil {
		logger.Errorf("[Scheduler] Ingestion failed: %v", err)
	} else if s.cfg.Scheduler.RefreshMart && s.martBuilder != nil && stats.Stored > 0 {
		if _, err := s.martBuilder.Refresh(ctx); err != nil {
			logger.Errorf("[Scheduler] Mart refresh failed: %v", err)
		}
	}

	s.checkAndRunCleanup(ctx)
	logger.Info("[Scheduler] Job finished.")
}

// cleanupDue reports whether the most recent cleanup slot at or before now
// has not been served yet. A restart may run it twice in one day.
func (s *Scheduler) cleanupDue(now time.Time) bool {
	slot, err := s.cfg.Retention.NextCleanup(now.AddDate(0, 0, -1))
	if err != nil {
		logger.Warnf("[Scheduler] %v", err)
		return false
	}
	return s.lastCleanup.IsZero() || s.lastCleanup.Before(slot)
}

func (s *Scheduler) checkAndRunCleanup(ctx context.Context) {
	now := s.now()
	if s.retention == nil || !s.cleanupDue(now) {
		return
	}
	logger.Info("[Scheduler] Starting daily cleanup...")
	deleted, err := s.retention.CleanupOldData(ctx, s.cfg.DataRetentionDays)
	if err != nil {
		logger.Errorf("[Scheduler] Data cleanup failed: %v", err)
		return
	}
	s.lastCleanup = now
	logger.WithFields(map[string]interface{}{"deleted": deleted}).Info("[Scheduler] Cleanup completed.")
}
