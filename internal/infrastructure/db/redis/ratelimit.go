package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// FixedWindowLimiter limits actions per key in a fixed time window shared by
// every instance through Redis.
type FixedWindowLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewFixedWindowLimiter creates a limiter allowing limit actions per window.
func NewFixedWindowLimiter(client *redis.Client, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window < time.Millisecond {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &FixedWindowLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}, nil
}

// Allow counts one action for key and reports whether it is within quota.
// Redis failures are returned to the caller, which decides how to fail.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	slot := l.now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	count, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit: %w", err)
	}
	return count <= int64(l.limit), nil
}
