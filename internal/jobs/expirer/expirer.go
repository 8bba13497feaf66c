package expirer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sweeper is the slice of the expiration service the job drives.
type Sweeper interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// Job periodically closes matches whose handover window elapsed. Safe to run
// from several processes at once: the underlying transitions are conditional
// and fire at most once per match.
type Job struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
}

func New(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *Job {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
	}
}

func (j *Job) Run(ctx context.Context) error {
	if j.sweeper == nil {
		return nil
	}

	expired, err := j.sweeper.ExpireOverdue(ctx)
	if err != nil {
		return fmt.Errorf("expire overdue matches: %w", err)
	}
	if expired > 0 {
		j.logger.Info("expiration sweep completed", zap.Int("expired", expired))
	}

	return nil
}

// Loop runs one sweep immediately and then on every tick until the context
// is cancelled. A failed sweep is logged and retried on the next tick, so a
// transient storage outage never kills the loop.
func (j *Job) Loop(ctx context.Context) error {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("expiration sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("expiration sweep failed", zap.Error(err))
			}
		}
	}
}
