package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultDedupTTL = 10 * time.Minute

// DedupChecker provides idempotency checks backed by Redis.
// Key format: dedup:<key>
type DedupChecker struct {
	client *redis.Client
}

// NewDedupChecker creates a DedupChecker wrapping the given Redis client.
func NewDedupChecker(client *redis.Client) *DedupChecker {
	return &DedupChecker{client: client}
}

// MarkIfNew records key and reports whether it had not been seen within ttl.
// The check and the write are one SET NX, so concurrent retries cannot both
// be accepted.
func (d *DedupChecker) MarkIfNew(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	ok, err := d.client.SetNX(ctx, "dedup:"+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup mark: %w", err)
	}
	return ok, nil
}

// Forget deletes key. Forgetting an unknown key is not an error.
func (d *DedupChecker) Forget(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, "dedup:"+key).Err(); err != nil {
		return fmt.Errorf("dedup forget: %w", err)
	}
	return nil
}
