// Package app builds the shared backends of the api and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"attendtrack/internal/attendance"
	"attendtrack/internal/config"
	"attendtrack/internal/govsync"
	"attendtrack/internal/metrics"
	"attendtrack/internal/queue"
	"attendtrack/internal/settings"
	"attendtrack/internal/store"
)

// SyncQueueKey is the Redis list holding sync jobs.
const SyncQueueKey = "attendance:sync"

// Backends are the storage and messaging handles of one process.
type Backends struct {
	Store    attendance.Store
	Queue    queue.Queue
	Statuses govsync.StatusStore
	Settings settings.Store
	Redis    *store.Redis

	closers []func() error
}

// Open connects the backends selected by cfg. Postgres migrations run on open.
func Open(ctx context.Context, cfg config.App, log *zap.Logger) (*Backends, error) {
	b := &Backends{}
	switch cfg.StoreBackend {
	case "memory":
		b.Store = attendance.NewMemoryStore()
		log.Warn("using in-memory store; data is lost on restart")
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		if err := store.Migrate(db.Client); err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Store = attendance.NewRepository(db.Client)
	}

	if cfg.QueueBackend == "memory" {
		b.Queue = queue.NewInMemory(64)
		b.Statuses = govsync.NewMemoryStatusStore()
		b.Settings = settings.NewMemoryStore()
		return b, nil
	}
	b.Redis = store.NewRedis(cfg.RedisAddr)
	b.closers = append(b.closers, b.Redis.Close)
	if !b.Redis.Healthy(ctx) {
		log.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr))
	}
	b.Queue = queue.NewRedisQueue(b.Redis.Client, SyncQueueKey)
	b.Statuses = govsync.NewRedisStatusStore(b.Redis.Client)
	b.Settings = settings.NewRedisStore(b.Redis.Client)
	return b, nil
}

// PingStore checks the attendance store and records the latency.
func (b *Backends) PingStore(ctx context.Context) error {
	start := time.Now()
	err := b.Store.Ping(ctx)
	metrics.ObserveDBPing(time.Since(start))
	return err
}

// PingRedis fails when Redis is configured and unreachable.
func (b *Backends) PingRedis(ctx context.Context) error {
	if b.Redis == nil || b.Redis.Healthy(ctx) {
		return nil
	}
	return errors.New("redis unreachable")
}

// Close releases every handle in reverse order of opening.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
