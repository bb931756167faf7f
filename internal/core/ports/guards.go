package ports

import (
	"context"
	"time"
)

// RateLimiter bounds how often a key may perform an action.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// DedupChecker remembers client message ids to drop retried sends.
type DedupChecker interface {
	// MarkIfNew records the key and reports whether it was unseen.
	MarkIfNew(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget releases a key whose message was never stored, so a retry is
	// accepted.
	Forget(ctx context.Context, key string) error
}
