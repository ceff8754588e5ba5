package store

import (
	"context"
	"fmt"

	"github.com/doclens/doclens/pkg/config"
)

// Open builds the backend selected by cfg and applies its capacity limit.
func Open(ctx context.Context, cfg *config.AppConfig) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.StorageBackend() {
	case "memory":
		b = NewMemoryBackend()
	case "sqlite":
		b, err = OpenSQLite(cfg.StoragePath())
	case "redis":
		addr := cfg.Storage.RedisAddr
		if addr == "" {
			addr = "127.0.0.1:6379"
		}
		b, err = OpenRedis(ctx, addr, cfg.Storage.RedisPassword, cfg.Storage.RedisDB)
	case "postgres", "mysql":
		b, err = OpenSQL(ctx, cfg.StorageBackend(), cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.StorageBackend())
	}
	if err != nil {
		return nil, err
	}
	return Limit(b, cfg.CapacityBytes()), nil
}
