package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PendingSweeper removes expired pending assignments.
type PendingSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// CooldownPurger removes tap cooldown records past their expiry.
type CooldownPurger interface {
	Purge(ctx context.Context) (int64, error)
}

// Sweeper periodically cleans up expired pending assignments and, when the database cooldown
// backend is in use, stale tap_cooldowns rows.
type Sweeper struct {
	pending   PendingSweeper
	cooldowns CooldownPurger
	interval  time.Duration
	logger    *zap.Logger
}

// NewSweeper builds a sweeper. cooldowns may be nil.
func NewSweeper(pending PendingSweeper, cooldowns CooldownPurger, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{pending: pending, cooldowns: cooldowns, interval: interval, logger: logger}
}

// Run sweeps once immediately and then every interval until ctx is done.
// A non-positive interval disables the sweeper.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("pending assignment sweeper disabled")
		return
	}
	s.logger.Info("pending assignment sweeper started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("pending assignment sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep. Failures are logged and retried on the next tick.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if s.pending != nil {
		n, err := s.pending.SweepExpired(ctx)
		switch {
		case err != nil:
			s.logger.Warn("sweep pending assignments failed", zap.Error(err))
		case n > 0:
			s.logger.Info("expired pending assignments removed", zap.Int("count", n))
		}
	}
	if s.cooldowns != nil {
		n, err := s.cooldowns.Purge(ctx)
		switch {
		case err != nil:
			s.logger.Warn("purge tap cooldowns failed", zap.Error(err))
		case n > 0:
			s.logger.Debug("tap cooldowns purged", zap.Int64("count", n))
		}
	}
}
