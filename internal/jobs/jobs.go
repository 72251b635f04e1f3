// Package jobs schedules the periodic maintenance work: garbage
// collection of abandoned pending invoices and force-release of user
// locks whose lease ran out (a crash while holding a lock).
package jobs

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/models"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/pkg/logger"
)

type Scheduler struct {
	logger *logger.Logger

	repo       models.Repository
	pendingTTL time.Duration

	cron *cron.Cron
}

func New(repo models.Repository, pendingTTL time.Duration, logger *logger.Logger) *Scheduler {
	return &Scheduler{
		repo:       repo,
		pendingTTL: pendingTTL,
		logger:     logger,
		cron:       cron.New(),
	}
}

// Start registers and launches the maintenance jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("@every 10m", s.expireStalePending); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every 1m", s.reapExpiredLocks); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("Maintenance jobs scheduled")
	return nil
}

// Stop halts the scheduler, waiting for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) expireStalePending() {
	olderThan := time.Now().Add(-s.pendingTTL).Unix()
	removed, err := s.repo.DeleteStalePending(olderThan)
	if err != nil {
		s.logger.Error("Failed to remove stale pending payments ", "error ", err)
		return
	}
	if removed > 0 {
		s.logger.Info("Removed stale pending payments ", "count ", removed)
	}
}

func (s *Scheduler) reapExpiredLocks() {
	reaped, err := s.repo.ReapExpiredLocks(time.Now().Unix())
	if err != nil {
		s.logger.Error("Failed to reap expired locks ", "error ", err)
		return
	}
	if reaped > 0 {
		// A reaped lock means a holder crashed mid critical section;
		// worth operator attention, not just debug noise.
		s.logger.Warn("Force-released expired user locks ", "count ", reaped)
	}
}
