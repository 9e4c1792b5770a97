package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-worker/internal/domain"
	"gorm.io/gorm"
)

const (
	MinFetchLimit = 1
	MaxFetchLimit = 100

	// StaleReclaimMessage is stored as last_error on jobs recovered from a stuck processing state.
	StaleReclaimMessage = "reclaimed after stale processing"
)

// ReclaimResult counts stale processing jobs returned to pending or failed.
type ReclaimResult struct {
	Requeued int64
	Failed   int64
}

// JobRepository is the narrow job-store port used by the dispatcher.
//
// Claim is the only concurrency-control primitive: an update guarded by
// status = pending and scheduled_at <= now. It returns (nil, nil) when the
// guard did not match.
type JobRepository interface {
	FetchCandidates(ctx context.Context, channel string, now time.Time, limit int) ([]domain.NotificationJob, error)
	Claim(ctx context.Context, id string, now time.Time) (*domain.NotificationJob, error)
	MarkSent(ctx context.Context, id string, now time.Time) error
	MarkRetry(ctx context.Context, id string, now time.Time, scheduledAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id string, now time.Time, lastError string) error
	ReclaimStale(ctx context.Context, channel string, staleBefore time.Time, maxAttempts int, now time.Time) (ReclaimResult, error)
}

type GormJobRepo struct {
	db *gorm.DB
}

var _ JobRepository = (*GormJobRepo)(nil)

func NewGormJobRepo(db *gorm.DB) *GormJobRepo {
	return &GormJobRepo{db: db}
}

func (r *GormJobRepo) FetchCandidates(ctx context.Context, channel string, now time.Time, limit int) ([]domain.NotificationJob, error) {
	var models []NotificationJobModel
	err := r.db.WithContext(ctx).
		Where("channel = ? AND status = ? AND scheduled_at <= ?", channel, domain.StatusPending.String(), now).
		Order("created_at ASC").
		Limit(clampLimit(limit)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	jobs := make([]domain.NotificationJob, 0, len(models))
	for i := range models {
		jobs = append(jobs, *jobModelToDomain(&models[i]))
	}

	return jobs, nil
}

func (r *GormJobRepo) Claim(ctx context.Context, id string, now time.Time) (*domain.NotificationJob, error) {
	var models []NotificationJobModel
	err := r.db.WithContext(ctx).
		Raw(`UPDATE notification_jobs
SET status = ?, attempts = attempts + 1, last_error = NULL, updated_at = ?
WHERE id = ? AND status = ? AND scheduled_at <= ?
RETURNING *`, domain.StatusProcessing.String(), now, id, domain.StatusPending.String(), now).
		Scan(&models).Error
	if err != nil {
		return nil, err
	}

	// Lost the race, or the job left pending or was rescheduled since the fetch.
	if len(models) == 0 {
		return nil, nil
	}

	return jobModelToDomain(&models[0]), nil
}

func (r *GormJobRepo) MarkSent(ctx context.Context, id string, now time.Time) error {
	return r.updateProcessing(ctx, id, map[string]any{
		"status":       domain.StatusSent.String(),
		"processed_at": now,
		"last_error":   nil,
		"updated_at":   now,
	})
}

func (r *GormJobRepo) MarkRetry(ctx context.Context, id string, now time.Time, scheduledAt time.Time, lastError string) error {
	return r.updateProcessing(ctx, id, map[string]any{
		"status":       domain.StatusPending.String(),
		"scheduled_at": scheduledAt,
		"last_error":   domain.Truncate(lastError, domain.MaxLastErrorLength),
		"updated_at":   now,
	})
}

func (r *GormJobRepo) MarkFailed(ctx context.Context, id string, now time.Time, lastError string) error {
	return r.updateProcessing(ctx, id, map[string]any{
		"status":       domain.StatusFailed.String(),
		"processed_at": now,
		"last_error":   domain.Truncate(lastError, domain.MaxLastErrorLength),
		"updated_at":   now,
	})
}

func (r *GormJobRepo) ReclaimStale(ctx context.Context, channel string, staleBefore time.Time, maxAttempts int, now time.Time) (ReclaimResult, error) {
	var out ReclaimResult

	failed := r.db.WithContext(ctx).
		Model(&NotificationJobModel{}).
		Where("channel = ? AND status = ? AND updated_at < ? AND attempts >= ?",
			channel, domain.StatusProcessing.String(), staleBefore, maxAttempts).
		Updates(map[string]any{
			"status":       domain.StatusFailed.String(),
			"processed_at": now,
			"last_error":   StaleReclaimMessage,
			"updated_at":   now,
		})
	if failed.Error != nil {
		return out, fmt.Errorf("failed to fail exhausted stale jobs: %w", failed.Error)
	}
	out.Failed = failed.RowsAffected

	requeued := r.db.WithContext(ctx).
		Model(&NotificationJobModel{}).
		Where("channel = ? AND status = ? AND updated_at < ? AND attempts < ?",
			channel, domain.StatusProcessing.String(), staleBefore, maxAttempts).
		Updates(map[string]any{
			"status":       domain.StatusPending.String(),
			"scheduled_at": now,
			"last_error":   StaleReclaimMessage,
			"updated_at":   now,
		})
	if requeued.Error != nil {
		return out, fmt.Errorf("failed to requeue stale jobs: %w", requeued.Error)
	}
	out.Requeued = requeued.RowsAffected

	return out, nil
}

// updateProcessing applies an outcome only while the job is still held in
// processing, so a terminal row is never resurrected.
func (r *GormJobRepo) updateProcessing(ctx context.Context, id string, values map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationJobModel{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing.String()).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s is not processing", domain.ErrConflict, id)
	}
	return nil
}

func clampLimit(limit int) int {
	return min(max(limit, MinFetchLimit), MaxFetchLimit)
}
