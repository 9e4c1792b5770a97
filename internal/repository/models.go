package repository

import (
	"time"

	"github.com/kursadbilgin/notification-worker/internal/domain"
	"gorm.io/datatypes"
)

// NotificationJobModel is the persistence model for the notification_jobs table.
type NotificationJobModel struct {
	ID          string            `gorm:"type:uuid;primaryKey"`
	Channel     string            `gorm:"type:varchar(32);not null"`
	EventType   string            `gorm:"type:varchar(64);not null;default:''"`
	TicketID    *string           `gorm:"type:varchar(64)"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	Attempts    int               `gorm:"not null;default:0"`
	Status      domain.Status     `gorm:"type:varchar(20);not null;default:'pending'"`
	ScheduledAt time.Time         `gorm:"type:timestamptz;not null"`
	LastError   *string           `gorm:"type:text"`
	CreatedAt   time.Time         `gorm:"type:timestamptz;not null"`
	UpdatedAt   time.Time         `gorm:"type:timestamptz;not null"`
	ProcessedAt *time.Time        `gorm:"type:timestamptz"`
}

func (NotificationJobModel) TableName() string {
	return "notification_jobs"
}

func jobModelToDomain(m *NotificationJobModel) *domain.NotificationJob {
	if m == nil {
		return nil
	}

	return &domain.NotificationJob{
		ID:          m.ID,
		Channel:     m.Channel,
		EventType:   m.EventType,
		TicketID:    m.TicketID,
		Payload:     map[string]any(m.Payload),
		Attempts:    m.Attempts,
		Status:      m.Status,
		ScheduledAt: m.ScheduledAt,
		LastError:   m.LastError,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		ProcessedAt: m.ProcessedAt,
	}
}
