package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twmb/franz-go/pkg/kgo"

	"uptime/internal/hub"
	"uptime/internal/hub/registry"
	"uptime/internal/platform/config"
	"uptime/internal/platform/kafka"
	"uptime/internal/platform/postgres"
	"uptime/internal/platform/redis"
	"uptime/internal/website/events"
	"uptime/internal/website/service"
	"uptime/internal/website/store"
)

// infra holds the optional backing services. Each falls back to an
// in-process implementation when it is not configured.
type infra struct {
	Store      service.Store
	Identities hub.Identities
	Publisher  service.TickPublisher

	pool  *pgxpool.Pool
	redis *redis.Client
	kafka *kgo.Client
}

func buildInfra(ctx context.Context, cfg config.Hub, log *slog.Logger) (*infra, error) {
	in := &infra{
		Store:      store.NewInMemory(),
		Identities: registry.NewMemory(),
		Publisher:  events.Noop{},
	}

	if cfg.DatabaseURL != "" {
		pool, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		in.pool = pool
		if err := postgres.Migrate(ctx, pool); err != nil {
			in.Close()
			return nil, err
		}
		in.Store = store.NewPostgres(pool)
		log.Info("using postgres website store")
	} else {
		log.Warn("DATABASE_URL not set, websites are kept in memory")
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, err
	}
	if rc != nil {
		in.redis = rc
		in.Identities = registry.NewRedis(rc, cfg.Redis.IdentityTTL)
		log.Info("using redis validator registry")
	}

	kc, err := kafka.NewClient(ctx, cfg.Kafka)
	if err != nil {
		in.Close()
		return nil, err
	}
	if kc != nil {
		in.kafka = kc
		if err := kafka.EnsureTopic(ctx, kc, cfg.Kafka.TicksTopic, cfg.Kafka.Partitions); err != nil {
			in.Close()
			return nil, fmt.Errorf("ensure ticks topic: %w", err)
		}
		in.Publisher = events.NewKafkaPublisher(kc, cfg.Kafka.TicksTopic)
		log.Info("publishing ticks to kafka", "topic", cfg.Kafka.TicksTopic)
	}
	return in, nil
}

// Ready pings every configured backing service.
func (in *infra) Ready(ctx context.Context) error {
	if in.pool != nil {
		if err := in.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if in.redis != nil {
		if err := in.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if in.kafka != nil {
		if err := in.kafka.Ping(ctx); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}
	return nil
}

func (in *infra) Close() {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.pool != nil {
		in.pool.Close()
	}
}
