// Package redis backs presence, retry dedup, send rate limits and the
// cross-instance relay with Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTimeout = 5 * time.Second
	opTimeout      = 3 * time.Second
)

type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// Timeout bounds dialing and the initial ping. Zero means defaultTimeout.
	Timeout time.Duration
}

// Connect builds a client and pings it once so a wrong address fails at
// startup instead of on the first chat message.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  timeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}
