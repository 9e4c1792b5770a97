package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notification-worker/internal/repository"
	"gorm.io/gorm"
)

func createNotificationJobsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_notification_jobs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NotificationJobModel{}); err != nil {
				return err
			}
			statements := []string{
				`ALTER TABLE notification_jobs DROP CONSTRAINT IF EXISTS chk_notification_jobs_status`,
				`ALTER TABLE notification_jobs ADD CONSTRAINT chk_notification_jobs_status CHECK (status IN ('pending', 'processing', 'sent', 'failed'))`,
				`CREATE INDEX IF NOT EXISTS idx_notification_jobs_due ON notification_jobs (channel, status, scheduled_at, created_at)`,
			}
			return execAll(tx, statements)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationJobModel{})
		},
	}
}
