package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Retrier resends failed donor notifications and reports how many went out.
type Retrier interface {
	RetryFailed(ctx context.Context) (int, error)
}

// Scheduler runs the notification retry job on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	retrier  Retrier
	logger   *slog.Logger
	schedule string
	timeout  time.Duration
}

// New builds a scheduler for schedule. An empty schedule yields a scheduler whose Start is a no-op.
func New(retrier Retrier, logger *slog.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		retrier:  retrier,
		logger:   logger,
		schedule: schedule,
		timeout:  time.Minute,
	}
}

// Start registers the retry job and starts the cron loop.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("notification retry job disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.RetryNotifications); err != nil {
		return fmt.Errorf("failed to schedule notification retry job %q: %w", s.schedule, err)
	}
	s.logger.Info("scheduled notification retry job", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RetryNotifications is the job body.
func (s *Scheduler) RetryNotifications() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	sent, err := s.retrier.RetryFailed(ctx)
	if err != nil {
		s.logger.Error("notification retry job failed", "error", err)
		return
	}
	if sent > 0 {
		s.logger.Info("notification retry job finished", "sent", sent)
	}
}
