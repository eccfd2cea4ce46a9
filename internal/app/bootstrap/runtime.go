package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/moving-call-relay/internal/config"
	"github.com/wolfman30/moving-call-relay/internal/handoff"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// HandoffDeps carries already-built clients a handoff backend may need.
type HandoffDeps struct {
	Redis *redis.Client
	S3    handoff.S3API
}

// BuildHandoffStore selects the handoff backend named by HANDOFF_STORE. The
// returned cleanup func releases backend resources and is never nil.
func BuildHandoffStore(ctx context.Context, cfg *appconfig.Config, deps HandoffDeps, logger *logging.Logger) (handoff.Store, func(), error) {
	noop := func() {}
	if cfg == nil {
		return nil, noop, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.HandoffStore {
	case "", appconfig.HandoffStoreMemory:
		logger.Info("handoff store: memory")
		return handoff.NewMemoryStore(), noop, nil

	case appconfig.HandoffStoreRedis:
		if deps.Redis == nil {
			return nil, noop, fmt.Errorf("bootstrap: handoff store redis: redis at %q unavailable", cfg.RedisAddr)
		}
		logger.Info("handoff store: redis", "addr", cfg.RedisAddr)
		return handoff.NewRedisStore(deps.Redis), noop, nil

	case appconfig.HandoffStorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: handoff store postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("bootstrap: handoff store postgres ping: %w", err)
		}
		logger.Info("handoff store: postgres")
		return handoff.NewPostgresStore(pool), pool.Close, nil

	case appconfig.HandoffStoreS3:
		if deps.S3 == nil {
			return nil, noop, errors.New("bootstrap: handoff store s3: client unavailable")
		}
		if strings.TrimSpace(cfg.HandoffBucket) == "" {
			return nil, noop, errors.New("bootstrap: handoff store s3: HANDOFF_BUCKET required")
		}
		logger.Info("handoff store: s3", "bucket", cfg.HandoffBucket)
		return handoff.NewS3Store(deps.S3, cfg.HandoffBucket), noop, nil
	}
	return nil, noop, fmt.Errorf("bootstrap: unknown handoff store %q", cfg.HandoffStore)
}
