// Package jobs runs the engine's periodic maintenance on cron schedules.
package jobs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/roach88/dicewager/internal/config"
)

// Maintainer is the part of the engine the jobs drive.
type Maintainer interface {
	PruneCooldowns() int
	EvictArchived(olderThan time.Duration) int
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron      *cron.Cron
	target    Maintainer
	retention time.Duration
	logger    *slog.Logger
}

// New creates a scheduler. A nil logger uses slog.Default().
func New(target Maintainer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		target: target,
		logger: logger,
	}
}

// Register adds every job with a non-empty spec.
func (s *Scheduler) Register(cfg config.Maintenance) error {
	s.retention = cfg.ArchiveRetention
	if cfg.PruneCooldowns != "" {
		if _, err := s.cron.AddFunc(cfg.PruneCooldowns, s.PruneCooldowns); err != nil {
			return fmt.Errorf("register prune_cooldowns: %w", err)
		}
	}
	if cfg.EvictArchived != "" {
		if _, err := s.cron.AddFunc(cfg.EvictArchived, s.EvictArchived); err != nil {
			return fmt.Errorf("register evict_archived: %w", err)
		}
	}
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.Len())
}

// Stop stops scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// PruneCooldowns runs the cooldown prune job now.
func (s *Scheduler) PruneCooldowns() {
	n := s.target.PruneCooldowns()
	s.logger.Debug("pruned cooldowns", "removed", n)
}

// EvictArchived runs the session eviction job now.
func (s *Scheduler) EvictArchived() {
	n := s.target.EvictArchived(s.retention)
	s.logger.Debug("evicted archived sessions", "removed", n, "retention", s.retention)
}
