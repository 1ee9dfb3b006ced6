// Package store builds the run cache selected by configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/HatiCode/rewardboard/cmd/dashboard/config"
	"github.com/HatiCode/rewardboard/pkg/storage"
)

// Store is a run cache that must be closed on shutdown.
type Store interface {
	storage.Store
	Close() error
}

// New returns the configured run cache and a health check for it. The check
// is nil for the in-memory cache.
func New(cfg *config.Config, logger *slog.Logger) (Store, func(ctx context.Context) error, error) {
	switch cfg.Storage {
	case "redis":
		rs, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("using redis run cache", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		return rs, rs.Ping, nil

	case "memory", "":
		if cfg.CacheTTL > 0 {
			logger.Info("using in-memory run cache", "ttl", cfg.CacheTTL)
			return storage.NewMemoryStoreWithTTL(cfg.CacheTTL, 0), nil, nil
		}
		logger.Info("using in-memory run cache")
		return storage.NewMemoryStore(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
