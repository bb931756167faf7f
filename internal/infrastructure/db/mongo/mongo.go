// Package mongo stores users, groups, memberships, messages and
// notifications in MongoDB.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultTimeout = 10 * time.Second
	indexTimeout   = 30 * time.Second
)

type Config struct {
	URI         string
	Database    string
	AppName     string
	MaxPoolSize uint64
	// Timeout bounds connect and the initial ping. Zero means defaultTimeout.
	Timeout time.Duration
}

// Connect opens a client, pings the primary and returns the client with the
// configured database.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetTimeout(defaultTimeout)
	if cfg.AppName != "" {
		opts.SetAppName(cfg.AppName)
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, client.Database(cfg.Database), nil
}

// IndexOwner is a repository that declares its own indexes.
type IndexOwner interface {
	EnsureIndexes(ctx context.Context) error
}

// EnsureIndexes creates the indexes of every repository, stopping at the
// first failure.
func EnsureIndexes(ctx context.Context, owners ...IndexOwner) error {
	for _, o := range owners {
		if err := o.EnsureIndexes(ctx); err != nil {
			return err
		}
	}
	return nil
}
