package queue

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notification-worker/internal/observability"
	"github.com/kursadbilgin/notification-worker/internal/service"
	"go.uber.org/zap"
)

// TriggerMessage is the broker payload asking for one dispatcher invocation.
type TriggerMessage struct {
	BatchSize   *int   `json:"batchSize,omitempty"`
	RequestedBy string `json:"requestedBy,omitempty"`
}

func (m TriggerMessage) Validate() error {
	if m.BatchSize != nil && *m.BatchSize < service.MinBatchSize {
		return fmt.Errorf("batchSize must be at least %d, got %d", service.MinBatchSize, *m.BatchSize)
	}
	return nil
}

// BatchSizeOr returns the requested batch size, or fallback when none was given.
func (m TriggerMessage) BatchSizeOr(fallback int) int {
	if m.BatchSize == nil {
		return fallback
	}
	return *m.BatchSize
}

// NewRunnerHandler adapts a dispatcher runner into a TriggerHandler. Only a
// failed invocation is reported back; per-job failures live in the summary.
func NewRunnerHandler(runner service.Runner, defaultBatchSize int, logger *zap.Logger) TriggerHandler {
	if defaultBatchSize <= 0 {
		defaultBatchSize = service.DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(ctx context.Context, msg TriggerMessage) error {
		if runner == nil {
			return fmt.Errorf("dispatcher runner is required")
		}

		ctx = observability.WithTrigger(ctx, observability.TriggerQueue)
		summary, err := runner.Run(ctx, msg.BatchSizeOr(defaultBatchSize))
		if err != nil {
			return fmt.Errorf("queued invocation failed: %w", err)
		}

		logger.Debug("queued invocation finished",
			zap.String("requestedBy", msg.RequestedBy),
			zap.Int("scanned", summary.Scanned),
			zap.Int("sent", summary.Sent),
		)
		return nil
	}
}
