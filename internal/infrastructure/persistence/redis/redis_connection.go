// Package redis provides the Redis backed record cache and cluster lock.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

// RedisConnection manages the Redis client lifecycle. A single address connects to a
// standalone server, several addresses to a cluster.
type RedisConnection struct {
	config *config.RedisConfig
	client redis.UniversalClient
	logger logger.Logger
}

// NewRedisConnection connects to Redis and verifies connectivity with a ping.
func NewRedisConnection(ctx context.Context, cfg *config.RedisConfig, log logger.Logger) (*RedisConnection, error) {
	opts := &redis.UniversalOptions{
		Addrs:        cfg.Addresses,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
	}
	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		log.Error(ctx, "Redis ping failed", err, logger.Strings("addresses", cfg.Addresses))
		return nil, errors.ErrUnavailable("redis").WithCause(err)
	}

	log.Info(ctx, "Redis connection established",
		logger.Strings("addresses", cfg.Addresses),
		logger.Int("pool_size", cfg.PoolSize),
	)
	return FromClient(client, cfg, log), nil
}

// FromClient wraps an existing client.
func FromClient(client redis.UniversalClient, cfg *config.RedisConfig, log logger.Logger) *RedisConnection {
	return &RedisConnection{config: cfg, client: client, logger: log.WithComponent("redis")}
}

// Client returns the underlying client.
func (rc *RedisConnection) Client() redis.UniversalClient {
	return rc.client
}

// Key namespaces key with the configured prefix.
func (rc *RedisConnection) Key(parts ...string) string {
	key := rc.config.KeyPrefix
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += p
	}
	return key
}

// Ping checks Redis server connectivity.
func (rc *RedisConnection) Ping(ctx context.Context) error {
	if err := rc.client.Ping(ctx).Err(); err != nil {
		return errors.ErrUnavailable("redis").WithCause(err)
	}
	return nil
}

// HealthCheck reports connectivity, latency and pool statistics.
func (rc *RedisConnection) HealthCheck(ctx context.Context) (map[string]interface{}, error) {
	health := make(map[string]interface{})

	start := time.Now()
	err := rc.client.Ping(ctx).Err()
	health["connected"] = err == nil
	health["latency_ms"] = time.Since(start).Milliseconds()
	if err != nil {
		health["error"] = err.Error()
		return health, errors.ErrUnavailable("redis").WithCause(err)
	}

	stats := rc.client.PoolStats()
	health["total_conns"] = stats.TotalConns
	health["idle_conns"] = stats.IdleConns
	health["pool_timeouts"] = stats.Timeouts
	return health, nil
}

// Close closes the client.
func (rc *RedisConnection) Close() error {
	if err := rc.client.Close(); err != nil {
		rc.logger.Error(context.Background(), "Failed to close Redis connection", err)
		return err
	}
	rc.logger.Info(context.Background(), "Redis connection closed")
	return nil
}
