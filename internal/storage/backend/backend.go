// Package backend opens the configured storage.Storage implementation.
package backend

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/eventdesk/internal/config"
	"github.com/and161185/eventdesk/internal/migrate"
	"github.com/and161185/eventdesk/internal/storage"
	"github.com/and161185/eventdesk/internal/storage/pgstore"
	"github.com/and161185/eventdesk/internal/storage/redisstore"
)

// Open returns the store selected by cfg.Backend and a func releasing its resources.
func Open(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (storage.Storage, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemory(), noop, nil
	case config.BackendFile, "":
		fs := storage.NewFile(cfg.Dir)
		log.Debug("file storage", zap.String("path", fs.Path()))
		return fs, noop, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		log.Debug("redis storage", zap.String("addr", cfg.RedisAddr))
		return redisstore.New(rdb, cfg.RedisPrefix, 0), func() { _ = rdb.Close() }, nil
	case config.BackendPostgres:
		if err := migrate.Up(ctx, cfg.PostgresDSN); err != nil {
			return nil, nil, err
		}
		db, err := pgstore.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		log.Debug("postgres storage")
		return pgstore.New(db), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
