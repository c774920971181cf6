// Package scheduler runs the periodic watch-list refresh.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crypto-analyzer/internal/logger"
	"crypto-analyzer/internal/markethours"

	"github.com/robfig/cron/v3"
)

// Scheduler drives a Refresher from a cron spec with a seconds field.
type Scheduler struct {
	Cron      *cron.Cron
	Refresher *Refresher
	Ctx       context.Context

	// Timeout bounds a single run.
	Timeout time.Duration

	// TradingDaysOnly skips scheduled runs on weekends and exchange holidays.
	TradingDaysOnly bool

	log *slog.Logger
	now func() time.Time
}

// New creates a stopped scheduler. ctx is the parent of every run.
func New(ctx context.Context, r *Refresher) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Refresher: r,
		Ctx:       ctx,
		Timeout:   5 * time.Minute,
		log:       logger.Component("scheduler"),
		now:       time.Now,
	}
}

// Register adds the refresh job. An empty spec disables it.
func (s *Scheduler) Register(spec string) error {
	if spec == "" {
		s.log.Info("refresh job disabled")
		return nil
	}
	if _, err := s.Cron.AddFunc(spec, s.runScheduled); err != nil {
		return fmt.Errorf("register refresh job %q: %w", spec, err)
	}
	s.log.Info("refresh job registered", slog.String("spec", spec))
	return nil
}

// Start starts the cron loop.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron loop and waits for a running job, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.Cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// RunNow executes the refresh job immediately. main calls it when RunOnStart is set.
func (s *Scheduler) RunNow() {
	s.runOnce()
}

func (s *Scheduler) runScheduled() {
	if s.TradingDaysOnly && !markethours.IsTradingDay(s.now()) {
		s.log.Debug("market closed today, skipping refresh")
		return
	}
	s.runOnce()
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(s.Ctx, s.Timeout)
	defer cancel()

	if _, err := s.Refresher.RefreshAll(ctx); err != nil {
		if errors.Is(err, ErrRefreshInProgress) {
			s.log.Warn("skipping refresh, previous run still in progress")
			return
		}
		s.log.Error("refresh failed", slog.Any("error", err))
	}
}
