package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/kursadbilgin/notification-worker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var jobColumns = []string{
	"id", "channel", "event_type", "ticket_id", "payload", "attempts", "status",
	"scheduled_at", "last_error", "created_at", "updated_at", "processed_at",
}

func newMockRepo(t *testing.T) (*GormJobRepo, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Discard,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormJobRepo(db), mock
}

func TestGormJobRepoFetchCandidates(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	rows := sqlmock.NewRows(jobColumns).
		AddRow("job-a", "push", "ticket.created", "T-1", []byte(`{"title":"Disk full"}`), 0, "pending",
			now.Add(-time.Minute), nil, now.Add(-2*time.Minute), now.Add(-2*time.Minute), nil).
		AddRow("job-b", "push", "ticket.updated", nil, []byte(`{}`), 2, "pending",
			now.Add(-time.Second), "provider error", now.Add(-time.Minute), now.Add(-time.Minute), nil)

	mock.ExpectQuery(`SELECT \* FROM "notification_jobs" WHERE channel = \$1 AND status = \$2 AND scheduled_at <= \$3 ORDER BY created_at ASC LIMIT`).
		WillReturnRows(rows)

	jobs, err := repo.FetchCandidates(context.Background(), "push", now, 20)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "job-a", jobs[0].ID)
	assert.Equal(t, "Disk full", jobs[0].Payload["title"])
	require.NotNil(t, jobs[0].TicketID)
	assert.Equal(t, "T-1", *jobs[0].TicketID)
	assert.Equal(t, domain.StatusPending, jobs[1].Status)
	assert.Equal(t, 2, jobs[1].Attempts)
	assert.Nil(t, jobs[1].TicketID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormJobRepoClaim(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	rows := sqlmock.NewRows(jobColumns).
		AddRow("job-a", "push", "ticket.created", nil, []byte(`{"body":"hi"}`), 1, "processing",
			now.Add(-time.Minute), nil, now.Add(-time.Hour), now, nil)

	mock.ExpectQuery(`UPDATE notification_jobs\s+SET status = \$1, attempts = attempts \+ 1, last_error = NULL, updated_at = \$2\s+WHERE id = \$3 AND status = \$4 AND scheduled_at <= \$5\s+RETURNING \*`).
		WithArgs("processing", now, "job-a", "pending", now).
		WillReturnRows(rows)

	job, err := repo.Claim(context.Background(), "job-a", now)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, domain.StatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "hi", job.Payload["body"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormJobRepoClaimGuardMiss(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectQuery(`UPDATE notification_jobs`).
		WithArgs("processing", now, "job-a", "pending", now).
		WillReturnRows(sqlmock.NewRows(jobColumns))

	job, err := repo.Claim(context.Background(), "job-a", now)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormJobRepoClaimError(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	dbErr := errors.New("connection reset")

	mock.ExpectQuery(`UPDATE notification_jobs`).WillReturnError(dbErr)

	job, err := repo.Claim(context.Background(), "job-a", time.Now())
	assert.Nil(t, job)
	assert.ErrorIs(t, err, dbErr)
}

func TestGormJobRepoMarkOutcomes(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()

	testCases := []struct {
		name string
		call func(r *GormJobRepo) error
		args []driver.Value
	}{
		{
			name: "sent",
			call: func(r *GormJobRepo) error { return r.MarkSent(context.Background(), "job-a", now) },
		},
		{
			name: "retry",
			call: func(r *GormJobRepo) error {
				return r.MarkRetry(context.Background(), "job-a", now, now.Add(time.Minute), "provider error: status=500")
			},
			args: []driver.Value{"provider error: status=500", now.Add(time.Minute), "pending", now, "job-a", "processing"},
		},
		{
			name: "failed",
			call: func(r *GormJobRepo) error {
				return r.MarkFailed(context.Background(), "job-a", now, "provider error: status=400")
			},
			args: []driver.Value{"provider error: status=400", now, "failed", now, "job-a", "processing"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo, mock := newMockRepo(t)
			expect := mock.ExpectExec(`UPDATE "notification_jobs" SET .* WHERE id = \$\d+ AND status = \$\d+`)
			if tc.args != nil {
				expect = expect.WithArgs(tc.args...)
			}
			expect.WillReturnResult(sqlmock.NewResult(0, 1))

			require.NoError(t, tc.call(repo))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormJobRepoMarkSentNotProcessing(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	mock.ExpectExec(`UPDATE "notification_jobs" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkSent(context.Background(), "job-a", time.Now())
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestGormJobRepoMarkRetryTruncatesLastError(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	now := time.Unix(1_700_000_000, 0).UTC()
	longErr := strings.Repeat("x", domain.MaxLastErrorLength+50)

	mock.ExpectExec(`UPDATE "notification_jobs" SET`).
		WithArgs(strings.Repeat("x", domain.MaxLastErrorLength), now.Add(time.Minute), "pending", now, "job-a", "processing").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkRetry(context.Background(), "job-a", now, now.Add(time.Minute), longErr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormJobRepoReclaimStale(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectExec(`UPDATE "notification_jobs" SET .* WHERE channel = \$\d+ AND status = \$\d+ AND updated_at < \$\d+ AND attempts >= \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "notification_jobs" SET .* WHERE channel = \$\d+ AND status = \$\d+ AND updated_at < \$\d+ AND attempts < \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	result, err := repo.ReclaimStale(context.Background(), "push", now.Add(-15*time.Minute), 5, now)
	require.NoError(t, err)
	assert.Equal(t, ReclaimResult{Requeued: 3, Failed: 1}, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}
