package main

import (
	"context"
	"fmt"
	"log/slog"

	"rentpool/internal/app/middleware"
	"rentpool/internal/app/uow"
	"rentpool/internal/infra/cache/redis"
	"rentpool/internal/infra/config"
	"rentpool/internal/infra/db/mongo"
	"rentpool/internal/infra/db/postgres"
	"rentpool/internal/infra/inbox"
	"rentpool/internal/infra/obs"
	infraoutbox "rentpool/internal/infra/outbox"
	"rentpool/internal/infra/storage/memory"
)

type store struct {
	factory     uow.UoWFactory
	idempotency middleware.IdempotencyStore
	outbox      infraoutbox.Store
	inbox       inbox.Store
	purger      interface {
		PurgeExpired(ctx context.Context) (int64, error)
	}
	closers []func(context.Context) error
}

func (s *store) close(logger *slog.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](context.Background()); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}

// openStore picks the persistence driver and registers its readiness checks.
// A configured Redis replaces the driver's idempotency store.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger, health *obs.Health) (*store, error) {
	st := &store{}
	switch cfg.StoreDriver {
	case config.DriverMemory:
		mem := memory.NewStore()
		st.factory = memory.Factory{Store: mem}
		st.outbox = mem
		st.idempotency = memory.NewIdempotencyStore(cfg.IdempotencyTTL)
	case config.DriverMongo:
		client, err := mongo.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		client.IdempotencyTTL = cfg.IdempotencyTTL
		st.closers = append(st.closers, client.Close)
		if err := client.EnsureIndexes(ctx); err != nil {
			st.close(logger)
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		box, err := inbox.NewMongo(ctx, client.DB, "rentpool-status")
		if err != nil {
			st.close(logger)
			return nil, fmt.Errorf("mongo inbox: %w", err)
		}
		st.factory = mongo.Factory{DB: client.DB}
		st.outbox = mongo.NewOutboxStore(client.DB)
		st.idempotency = mongo.NewIdempotencyStore(client.DB)
		st.inbox = box
		health.Register("mongo", client.Ping)
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		st.closers = append(st.closers, func(context.Context) error { pool.Close(); return nil })
		if err := postgres.Migrate(ctx, pool); err != nil {
			st.close(logger)
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		idem := postgres.IdempotencyStore{DB: pool, TTL: cfg.IdempotencyTTL}
		st.factory = postgres.Factory{Pool: pool}
		st.outbox = postgres.OutboxStore{DB: pool}
		st.idempotency = idem
		st.purger = idem
		health.Register("postgres", pool.Ping)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		st.closers = append(st.closers, func(context.Context) error { return client.Close() })
		idem := redis.NewIdempotencyStore(client, cfg.IdempotencyTTL)
		st.idempotency = idem
		st.purger = nil
		health.Register("redis", idem.Ping)
	}
	logger.Info("store ready", "driver", cfg.StoreDriver, "redis_idempotency", cfg.RedisAddr != "")
	return st, nil
}
