package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Status represents the lifecycle state of a notification job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSent, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the job can never be claimed again.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

const (
	// MaxLastErrorLength caps the stored last_error text (in characters).
	MaxLastErrorLength = 500
	// MaxMessageLength caps the rendered notification text (in characters).
	MaxMessageLength = 5000
)

// NotificationJob is a row of the outbound notification queue. Rows are created
// by an upstream enqueuer; this worker only claims and records outcomes.
type NotificationJob struct {
	ID          string
	Channel     string
	EventType   string
	TicketID    *string
	Payload     map[string]any
	Attempts    int
	Status      Status
	ScheduledAt time.Time
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// IsClaimable reports whether the job may be claimed for channel at now.
func (j *NotificationJob) IsClaimable(channel string, now time.Time) bool {
	if j == nil {
		return false
	}
	return j.Status == StatusPending && j.Channel == channel && !j.ScheduledAt.After(now)
}

// Truncate cuts s to at most limit characters without splitting a UTF-8 sequence.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
