package server

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// rateSweepSchedule drops rate-limit windows that have already reset.
const rateSweepSchedule = "@every 5m"

// newScheduler registers the periodic sweeps of in-memory guard state.
// The scheduler is started by Run.
func (s *Server) newScheduler() (*cron.Cron, error) {
	log := cronLogger(s.logger.Named("sweeper"))
	c := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)

	if _, err := c.AddFunc(s.cfg.CSRF.SweepSchedule, s.sweepCSRF); err != nil {
		return nil, fmt.Errorf("csrf sweep schedule %q: %w", s.cfg.CSRF.SweepSchedule, err)
	}
	if _, err := c.AddFunc(rateSweepSchedule, s.sweepRateCounters); err != nil {
		return nil, fmt.Errorf("rate counter sweep schedule: %w", err)
	}
	return c, nil
}

// cronLogger adapts zap to the logr interface the scheduler logs through.
func cronLogger(l *zap.Logger) logr.Logger {
	return zapr.NewLogger(l)
}

func (s *Server) sweepCSRF() {
	if n := s.csrf.Sweep(); n > 0 {
		s.logger.Debug("swept csrf tokens", zap.Int("removed", n))
	}
}

func (s *Server) sweepRateCounters() {
	if n := s.limiter.Sweep(); n > 0 {
		s.logger.Debug("swept rate limit windows", zap.Int("removed", n))
	}
}
