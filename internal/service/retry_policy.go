package service

import "time"

const (
	// MaxRetries bounds the attempts a job may consume, the first delivery included.
	MaxRetries = 5

	maxBackoffMinutes = 60
)

// BackoffMinutes returns min(2^(attempt-1), 60). Attempts below 1 are
// treated as 1.
func BackoffMinutes(attempt int) int {
	if attempt < 1 {
		attempt = 1
	}

	minutes := 1
	for i := 1; i < attempt; i++ {
		minutes *= 2
		if minutes >= maxBackoffMinutes {
			return maxBackoffMinutes
		}
	}
	return minutes
}

func Backoff(attempt int) time.Duration {
	return time.Duration(BackoffMinutes(attempt)) * time.Minute
}

// ShouldRetry reports whether a job whose attempt nextAttempt just failed
// transiently may be rescheduled.
func ShouldRetry(nextAttempt int) bool {
	return nextAttempt < MaxRetries
}
