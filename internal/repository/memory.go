package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kursadbilgin/notification-worker/internal/domain"
)

// MemoryJobRepo is an in-process JobRepository. Every conditional update runs
// under a single mutex, which gives it the same row-level atomicity as the
// Postgres guard clauses.
type MemoryJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.NotificationJob
}

var _ JobRepository = (*MemoryJobRepo)(nil)

func NewMemoryJobRepo() *MemoryJobRepo {
	return &MemoryJobRepo{jobs: make(map[string]*domain.NotificationJob)}
}

// Insert stores a copy of job, replacing any row with the same id.
func (r *MemoryJobRepo) Insert(job domain.NotificationJob) error {
	if job.ID == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	if job.Status == "" {
		job.Status = domain.StatusPending
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = cloneJob(&job)
	return nil
}

// Get returns a copy of the stored job.
func (r *MemoryJobRepo) Get(id string) (*domain.NotificationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryJobRepo) FetchCandidates(ctx context.Context, channel string, now time.Time, limit int) ([]domain.NotificationJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := make([]domain.NotificationJob, 0)
	for _, job := range r.jobs {
		if job.IsClaimable(channel, now) {
			candidates = append(candidates, *cloneJob(job))
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	if limit = clampLimit(limit); len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (r *MemoryJobRepo) Claim(ctx context.Context, id string, now time.Time) (*domain.NotificationJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status != domain.StatusPending || job.ScheduledAt.After(now) {
		return nil, nil
	}

	job.Status = domain.StatusProcessing
	job.Attempts++
	job.LastError = nil
	job.UpdatedAt = now
	return cloneJob(job), nil
}

func (r *MemoryJobRepo) MarkSent(ctx context.Context, id string, now time.Time) error {
	return r.updateProcessing(ctx, id, func(job *domain.NotificationJob) {
		job.Status = domain.StatusSent
		job.ProcessedAt = &now
		job.LastError = nil
		job.UpdatedAt = now
	})
}

func (r *MemoryJobRepo) MarkRetry(ctx context.Context, id string, now time.Time, scheduledAt time.Time, lastError string) error {
	msg := domain.Truncate(lastError, domain.MaxLastErrorLength)
	return r.updateProcessing(ctx, id, func(job *domain.NotificationJob) {
		job.Status = domain.StatusPending
		job.ScheduledAt = scheduledAt
		job.LastError = &msg
		job.UpdatedAt = now
	})
}

func (r *MemoryJobRepo) MarkFailed(ctx context.Context, id string, now time.Time, lastError string) error {
	msg := domain.Truncate(lastError, domain.MaxLastErrorLength)
	return r.updateProcessing(ctx, id, func(job *domain.NotificationJob) {
		job.Status = domain.StatusFailed
		job.ProcessedAt = &now
		job.LastError = &msg
		job.UpdatedAt = now
	})
}

func (r *MemoryJobRepo) ReclaimStale(ctx context.Context, channel string, staleBefore time.Time, maxAttempts int, now time.Time) (ReclaimResult, error) {
	var out ReclaimResult
	if err := ctx.Err(); err != nil {
		return out, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, job := range r.jobs {
		if job.Channel != channel || job.Status != domain.StatusProcessing || !job.UpdatedAt.Before(staleBefore) {
			continue
		}

		msg := StaleReclaimMessage
		job.LastError = &msg
		job.UpdatedAt = now
		if job.Attempts >= maxAttempts {
			processedAt := now
			job.Status = domain.StatusFailed
			job.ProcessedAt = &processedAt
			out.Failed++
			continue
		}
		job.Status = domain.StatusPending
		job.ScheduledAt = now
		out.Requeued++
	}

	return out, nil
}

func (r *MemoryJobRepo) updateProcessing(ctx context.Context, id string, apply func(job *domain.NotificationJob)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	if job.Status != domain.StatusProcessing {
		return fmt.Errorf("%w: job %s is not processing", domain.ErrConflict, id)
	}

	apply(job)
	return nil
}

func cloneJob(job *domain.NotificationJob) *domain.NotificationJob {
	out := *job
	if job.Payload != nil {
		out.Payload = make(map[string]any, len(job.Payload))
		for k, v := range job.Payload {
			out.Payload[k] = v
		}
	}
	if job.TicketID != nil {
		v := *job.TicketID
		out.TicketID = &v
	}
	if job.LastError != nil {
		v := *job.LastError
		out.LastError = &v
	}
	if job.ProcessedAt != nil {
		v := *job.ProcessedAt
		out.ProcessedAt = &v
	}
	return &out
}
