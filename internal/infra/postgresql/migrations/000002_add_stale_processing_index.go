package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func addStaleProcessingIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_add_stale_processing_index",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_notification_jobs_stale ON notification_jobs (channel, updated_at) WHERE status = 'processing'`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS idx_notification_jobs_stale`).Error
		},
	}
}
