// Package bootstrap builds the runtime dependencies shared by the binaries
// from configuration: database pool, Redis client and webhook dedup store.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/autolead-ai-platform/internal/config"
	"github.com/wolfman30/autolead-ai-platform/internal/events"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

// ConnectPostgres opens and pings a pool. An empty URL returns nil, nil so
// callers fall back to in-memory stores.
func ConnectPostgres(ctx context.Context, databaseURL string, logger *logging.Logger) (*pgxpool.Pool, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("connected to postgres")
	return pool, nil
}

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

// BuildDeduper picks the webhook claim store: Redis, then Postgres, then
// memory. Nil when dedup is disabled.
func BuildDeduper(cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) events.Deduper {
	if cfg == nil || !cfg.WebhookDedupEnabled {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch {
	case redisClient != nil:
		logger.Info("webhook dedup backed by redis")
		return events.NewRedisProcessedStore(redisClient, events.DefaultRedisTTL)
	case pool != nil:
		logger.Info("webhook dedup backed by postgres")
		return events.NewProcessedStore(pool)
	default:
		logger.Warn("webhook dedup kept in memory; claims are lost on restart")
		return events.NewMemoryProcessedStore()
	}
}
