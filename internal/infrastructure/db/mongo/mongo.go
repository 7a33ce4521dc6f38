// Package mongo holds the MongoDB-backed stores: users with their embedded
// tokens, restriction rules, API clients and the email outbox.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultTimeout = 10 * time.Second

// Config captures the settings required to reach the database.
type Config struct {
	URI      string
	Database string
	AppName  string
	Timeout  time.Duration
}

// Indexer is a store that owns indexes on its collection.
type Indexer interface {
	EnsureIndexes(ctx context.Context) error
}

// Connect opens a client, pings the primary and returns the client with the
// selected database.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	appName := cfg.AppName
	if appName == "" {
		appName = "gatekeeper"
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(appName).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	return client, client.Database(cfg.Database), nil
}

// EnsureIndexes creates the indexes of every store, stopping at the first
// failure. Unique indexes back the username, email, mobile and rule-scope
// conflicts reported by the stores.
func EnsureIndexes(ctx context.Context, stores ...Indexer) error {
	for _, s := range stores {
		if err := s.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure indexes: %w", err)
		}
	}
	return nil
}
