/**
 * @description
 * Cron-driven idle-session sweeper. The manager already checks the idle
 * deadline on every input, but an abandoned session receives no further
 * input at all; the sweeper ticks on a schedule and forces those sessions
 * back to idle. Expiry is idempotent, so a sweep racing an in-band timeout
 * check or a just-completed logout is a no-op.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically expires idle sessions.
type Sweeper struct {
	cron     *cron.Cron
	manager  *Manager
	schedule string
	logger   *slog.Logger
}

// NewSweeper creates a sweeper running on a seconds-granularity cron
// schedule, e.g. "*/5 * * * * *".
func NewSweeper(manager *Manager, schedule string, logger *slog.Logger) *Sweeper {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger)))

	return &Sweeper{
		cron:     c,
		manager:  manager,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the sweep job and starts the cron scheduler.
func (s *Sweeper) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		s.logger.Error("failed to schedule idle session sweep", "error", err, "schedule", s.schedule)
		return
	}
	s.logger.Info("scheduled idle session sweep", "schedule", s.schedule)
	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Sweeper) sweep() {
	if s.manager.ExpireIdle(context.Background()) {
		s.logger.Info("idle session expired by sweeper")
	}
}
