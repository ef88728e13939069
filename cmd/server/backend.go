package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shiva/freightroute/config"
	"github.com/shiva/freightroute/internal/handler"
	"github.com/shiva/freightroute/internal/repository"
	"github.com/shiva/freightroute/pkg/cache"
	"github.com/shiva/freightroute/pkg/db"
	"github.com/shiva/freightroute/pkg/logger"
)

// backend is the storage selected by STORE_DRIVER together with the
// connections it owns.
type backend struct {
	store  repository.Store
	dir    repository.Directory
	writer repository.DirectoryWriter
	checks map[string]handler.Check

	pool  *pgxpool.Pool
	redis *redis.Client
}

// openBackend connects to PostgreSQL (and Redis when the directory cache is
// enabled), or builds an in-memory store for STORE_DRIVER=memory.
func openBackend(ctx context.Context, cfg *config.Config, log logger.Logger) (*backend, error) {
	if cfg.App.Store == "memory" {
		mem := repository.NewMemoryStore()
		log.Warnf("using in-memory store, data is lost on exit")
		return &backend{store: mem, dir: mem, writer: mem, checks: map[string]handler.Check{}}, nil
	}

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	log.Infof("postgres connected")

	pgDir := repository.NewPostgresDirectory(pool)
	b := &backend{
		store:  repository.NewPostgresStore(pool),
		dir:    pgDir,
		writer: pgDir,
		pool:   pool,
		checks: map[string]handler.Check{
			"postgres": func(ctx context.Context) error { return db.HealthCheck(ctx, pool) },
		},
	}

	if cfg.Cache.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		log.Infof("redis connected, directory cache ttl %s", cfg.Cache.TTL)
		b.redis = client
		cached := repository.NewCachedDirectory(pgDir, client, cfg.Cache.TTL, logger.New("directory-cache"))
		b.dir, b.writer = cached, cached
		b.checks["redis"] = func(ctx context.Context) error { return cache.HealthCheck(ctx, client) }
	}
	return b, nil
}

func (b *backend) Close() {
	if b.redis != nil {
		b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}
