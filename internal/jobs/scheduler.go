// Package jobs runs the periodic ledger maintenance tasks.
package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/recordvault/backend/internal/config"
	"github.com/recordvault/backend/internal/services"
)

// Reconciler and IntentExpirer are satisfied by the services package.
type Reconciler interface {
	Reconcile(ctx context.Context) (*services.ReconcileReport, error)
}

type IntentExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron       *cron.Cron
	cfg        config.JobsConfig
	reconciler Reconciler
	expirer    IntentExpirer
}

func NewScheduler(cfg config.JobsConfig, reconciler Reconciler, expirer IntentExpirer) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		cfg:        cfg,
		reconciler: reconciler,
		expirer:    expirer,
	}
}

// Start registers the jobs and starts the cron loop. An empty schedule
// disables that job.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.ReconcileSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.ReconcileSchedule, func() { s.reconcile(ctx) }); err != nil {
			return fmt.Errorf("schedule reconciliation: %w", err)
		}
	}
	if s.cfg.ExpirySchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.ExpirySchedule, func() { s.expire(ctx) }); err != nil {
			return fmt.Errorf("schedule intent expiry: %w", err)
		}
	}

	s.cron.Start()
	log.WithFields(log.Fields{
		"reconcile": s.cfg.ReconcileSchedule,
		"expiry":    s.cfg.ExpirySchedule,
	}).Info("Job scheduler started")
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	<-done.Done()
	log.Info("Job scheduler stopped")
}

func (s *Scheduler) reconcile(ctx context.Context) {
	log.Debug("[CRON] Reconciling ledger")
	if _, err := s.reconciler.Reconcile(ctx); err != nil {
		log.WithError(err).Error("[CRON] Reconciliation failed")
	}
}

func (s *Scheduler) expire(ctx context.Context) {
	log.Debug("[CRON] Expiring stale payment intents")
	if _, err := s.expirer.ExpireStale(ctx); err != nil {
		log.WithError(err).Error("[CRON] Intent expiry failed")
	}
}
