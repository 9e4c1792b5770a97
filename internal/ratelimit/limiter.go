package ratelimit

import "context"

// RateLimiter paces outbound push calls per channel. Wait blocks until a
// slot is available or ctx ends.
type RateLimiter interface {
	Allow(ctx context.Context, channel string) (bool, error)
	Wait(ctx context.Context, channel string) error
}
