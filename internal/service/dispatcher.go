package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-worker/internal/domain"
	"github.com/kursadbilgin/notification-worker/internal/formatter"
	"github.com/kursadbilgin/notification-worker/internal/observability"
	"github.com/kursadbilgin/notification-worker/internal/provider"
	"github.com/kursadbilgin/notification-worker/internal/ratelimit"
	"github.com/kursadbilgin/notification-worker/internal/repository"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize = 20
	MinBatchSize     = repository.MinFetchLimit
	MaxBatchSize     = repository.MaxFetchLimit
)

// Failure reasons reported on the failed counter.
const (
	failureReasonPermanent   = "permanent_error"
	failureReasonExhausted   = "retry_exhausted"
	failureReasonBookkeeping = "bookkeeping"
)

// ClampBatchSize bounds a requested batch size into [MinBatchSize, MaxBatchSize].
func ClampBatchSize(size int) int {
	return min(max(size, MinBatchSize), MaxBatchSize)
}

// Runner executes one dispatcher invocation.
type Runner interface {
	Run(ctx context.Context, batchSize int) (domain.Summary, error)
}

type DispatcherConfig struct {
	Channel string
	// StaleAfter enables reclaiming jobs left in processing longer than this.
	StaleAfter time.Duration
}

// Dispatcher claims due jobs for one channel, delivers them one at a time and
// records each outcome. It holds no state between invocations.
type Dispatcher struct {
	jobs        repository.JobRepository
	provider    provider.Provider
	formatter   *formatter.Formatter
	rateLimiter ratelimit.RateLimiter
	channel     string
	staleAfter  time.Duration
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

var _ Runner = (*Dispatcher)(nil)

func NewDispatcher(
	jobs repository.JobRepository,
	provider provider.Provider,
	messageFormatter *formatter.Formatter,
	cfg DispatcherConfig,
	logger *zap.Logger,
) *Dispatcher {
	if messageFormatter == nil {
		messageFormatter = formatter.New("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		jobs:       jobs,
		provider:   provider,
		formatter:  messageFormatter,
		channel:    strings.TrimSpace(cfg.Channel),
		staleAfter: cfg.StaleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

func (d *Dispatcher) SetRateLimiter(limiter ratelimit.RateLimiter) {
	if d == nil {
		return
	}
	d.rateLimiter = limiter
}

// SetClock replaces the wall clock used for eligibility and outcome timestamps.
func (d *Dispatcher) SetClock(now func() time.Time) {
	if d == nil || now == nil {
		return
	}
	d.now = now
}

// Run processes at most one batch. Per-job failures never abort the batch;
// only a configuration problem or a failed candidate fetch returns an error.
func (d *Dispatcher) Run(ctx context.Context, batchSize int) (domain.Summary, error) {
	summary := domain.NewSummary()
	if err := d.validate(); err != nil {
		return summary, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx = observability.WithInvocationID(ctx, uuid.NewString())
	logger := observability.WithContextLogger(d.logger, ctx)

	startedAt := d.now()
	limit := ClampBatchSize(batchSize)

	d.reclaimStale(ctx, logger, startedAt)

	jobs, err := d.jobs.FetchCandidates(ctx, d.channel, startedAt, limit)
	if err != nil {
		d.metrics.ObserveInvocation("error", d.now().Sub(startedAt))
		logger.Error("failed to fetch candidate jobs", zap.Error(err))
		return summary, fmt.Errorf("failed to fetch candidate jobs: %w", err)
	}
	summary.Scanned = len(jobs)

	for i := range jobs {
		if ctx.Err() != nil {
			logger.Warn("invocation context ended, leaving remaining candidates",
				zap.Int("remaining", len(jobs)-i),
			)
			break
		}
		d.processJob(ctx, logger, jobs[i], &summary)
	}

	d.metrics.ObserveInvocation("ok", d.now().Sub(startedAt))
	logger.Info("invocation finished",
		zap.String("channel", d.channel),
		zap.Int("batchSize", limit),
		zap.Int("scanned", summary.Scanned),
		zap.Int("claimed", summary.Claimed),
		zap.Int("sent", summary.Sent),
		zap.Int("retryScheduled", summary.RetryScheduled),
		zap.Int("failed", summary.Failed),
		zap.Int("errors", len(summary.Errors)),
	)

	return summary, nil
}

func (d *Dispatcher) validate() error {
	if d == nil {
		return fmt.Errorf("%w: dispatcher is not initialized", domain.ErrConfiguration)
	}

	missing := make([]string, 0, 3)
	if d.jobs == nil {
		missing = append(missing, "job store")
	}
	if d.provider == nil {
		missing = append(missing, "push provider")
	}
	if d.channel == "" {
		missing = append(missing, "worker channel")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

func (d *Dispatcher) processJob(ctx context.Context, logger *zap.Logger, candidate domain.NotificationJob, summary *domain.Summary) {
	jobLogger := logger.With(zap.String("jobId", candidate.ID))

	job, err := d.jobs.Claim(ctx, candidate.ID, d.now())
	if err != nil {
		d.recordBookkeepingError(jobLogger, summary, "claim", candidate.ID, err)
		return
	}
	if job == nil {
		jobLogger.Debug("job no longer pending, skipping")
		return
	}

	// The claimed row is authoritative: another invocation may have retried
	// the job after it was fetched.
	attempt := job.Attempts

	summary.Claimed++
	d.metrics.IncJobsClaimed(d.channel)
	d.metrics.IncWorkerInFlight(d.channel)
	defer d.metrics.DecWorkerInFlight(d.channel)

	text := d.formatter.Format(*job)
	sendErr := d.deliver(ctx, text)
	now := d.now()

	if sendErr == nil {
		if err := d.jobs.MarkSent(ctx, job.ID, now); err != nil {
			d.recordBookkeepingError(jobLogger, summary, "mark_sent", job.ID, err)
			return
		}
		summary.Sent++
		d.metrics.IncNotificationSent(d.channel)
		jobLogger.Debug("notification sent", zap.Int("attempt", attempt))
		return
	}

	transient := provider.IsTransient(sendErr)
	if transient && ShouldRetry(attempt) {
		scheduledAt := now.Add(Backoff(attempt))
		if err := d.jobs.MarkRetry(ctx, job.ID, now, scheduledAt, sendErr.Error()); err != nil {
			d.recordBookkeepingError(jobLogger, summary, "mark_retry", job.ID, err)
			d.countFailed(summary, failureReasonBookkeeping)
			return
		}
		summary.RetryScheduled++
		d.metrics.IncRetryScheduled(d.channel)
		jobLogger.Warn("delivery failed, retry scheduled",
			zap.Int("attempt", attempt),
			zap.Time("scheduledAt", scheduledAt),
			zap.Error(sendErr),
		)
		return
	}

	reason := failureReasonPermanent
	if transient {
		reason = failureReasonExhausted
	}

	if err := d.jobs.MarkFailed(ctx, job.ID, now, sendErr.Error()); err != nil {
		d.recordBookkeepingError(jobLogger, summary, "mark_failed", job.ID, err)
		d.countFailed(summary, failureReasonBookkeeping)
		return
	}
	d.countFailed(summary, reason)
	jobLogger.Warn("delivery failed, job marked failed",
		zap.Int("attempt", attempt),
		zap.String("reason", reason),
		zap.Error(sendErr),
	)
}

// deliver waits on the outbound limiter, when one is configured, and pushes
// text. A limiter failure is reported as a transient delivery error.
func (d *Dispatcher) deliver(ctx context.Context, text string) error {
	if d.rateLimiter != nil {
		if err := d.rateLimiter.Wait(ctx, d.channel); err != nil {
			return &provider.ProviderError{
				Message:   "rate limiter wait failed",
				Transient: !errors.Is(err, context.Canceled),
				Cause:     err,
			}
		}
	}

	sendStart := d.now()
	_, err := d.provider.Send(ctx, text)
	d.metrics.ObserveNotificationSendDuration(d.channel, d.now().Sub(sendStart))
	return err
}

func (d *Dispatcher) reclaimStale(ctx context.Context, logger *zap.Logger, now time.Time) {
	if d.staleAfter <= 0 {
		return
	}

	result, err := d.jobs.ReclaimStale(ctx, d.channel, now.Add(-d.staleAfter), MaxRetries, now)
	if err != nil {
		d.metrics.IncBookkeepingError("reclaim_stale")
		logger.Error("failed to reclaim stale processing jobs", zap.Error(err))
		return
	}

	d.metrics.AddStaleReclaimed("requeued", result.Requeued)
	d.metrics.AddStaleReclaimed("failed", result.Failed)
	if result.Requeued > 0 || result.Failed > 0 {
		logger.Warn("reclaimed stale processing jobs",
			zap.Int64("requeued", result.Requeued),
			zap.Int64("failed", result.Failed),
			zap.Duration("staleAfter", d.staleAfter),
		)
	}
}

func (d *Dispatcher) recordBookkeepingError(logger *zap.Logger, summary *domain.Summary, operation, jobID string, err error) {
	summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", jobID, err.Error()))
	d.metrics.IncBookkeepingError(operation)
	logger.Error("job store operation failed",
		zap.String("operation", operation),
		zap.Error(err),
	)
}

func (d *Dispatcher) countFailed(summary *domain.Summary, reason string) {
	summary.Failed++
	d.metrics.IncNotificationFailed(d.channel, reason)
}
