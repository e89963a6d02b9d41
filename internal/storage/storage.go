// Package storage persists the console's local state (the signed-in identity
// and its token) so it survives a restart.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/revelly2/smart-store-front/internal/config"
	"github.com/revelly2/smart-store-front/internal/database"
	"github.com/revelly2/smart-store-front/internal/migrations"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("storage: key not found")

// Storage is a small string key/value store.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Open builds the backend named by cfg.StateBackend ("sqlite" or "redis").
func Open(ctx context.Context, cfg config.Config) (Storage, error) {
	switch cfg.StateBackend {
	case "", "sqlite":
		db, err := database.Connect(cfg.StateDSN)
		if err != nil {
			return nil, err
		}
		if err := migrations.Run(db); err != nil {
			db.Close()
			return nil, err
		}
		return NewSQLite(db), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
		}
		return NewRedis(client), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}
