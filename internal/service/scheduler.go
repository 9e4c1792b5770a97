package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-worker/internal/observability"
	"go.uber.org/zap"
)

// Scheduler wraps the dispatcher in an interval loop for deployments without
// an external trigger.
type Scheduler struct {
	runner    Runner
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

func NewScheduler(runner Runner, interval time.Duration, batchSize int, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("scheduler runner is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		runner:    runner,
		logger:    logger,
		interval:  interval,
		batchSize: ClampBatchSize(batchSize),
	}, nil
}

// Start runs one invocation immediately and then one per tick until ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = observability.WithTrigger(ctx, observability.TriggerSchedule)

	if err := s.runOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial run failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.runOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("scheduler run failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	if _, err := s.runner.Run(ctx, s.batchSize); err != nil {
		return fmt.Errorf("dispatcher run failed: %w", err)
	}
	return nil
}
