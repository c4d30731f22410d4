// Package bootstrap assembles the service graph shared by the server and the admin CLI.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/turtacn/authstore/internal/application"
	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/internal/domain/repository"
	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/internal/infrastructure/audit"
	"github.com/turtacn/authstore/internal/infrastructure/cache"
	"github.com/turtacn/authstore/internal/infrastructure/crypto"
	"github.com/turtacn/authstore/internal/infrastructure/kms"
	"github.com/turtacn/authstore/internal/infrastructure/monitoring"
	"github.com/turtacn/authstore/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/authstore/internal/infrastructure/persistence/redis"
	"github.com/turtacn/authstore/internal/interfaces/http/handlers"
	"github.com/turtacn/authstore/pkg/logger"
)

// Components is the wired service graph.
type Components struct {
	Config   *config.Config
	Logger   logger.Logger
	Registry *prometheus.Registry
	Metrics  *monitoring.Metrics
	Tracing  *monitoring.TracingManager

	DB     *postgres.DBConnection
	Redis  *redis.RedisConnection
	Events service.EventPublisher
	Locks  service.LockProvider

	SigningKeys repository.SigningKeyRepository

	Authorizations *application.AuthorizationService
	Rotation       *application.KeyRotationService
	Signer         *application.TokenSigner
	Scheduler      *application.RotationScheduler
}

// Build connects to every configured dependency and wires the services. On error
// everything opened so far is closed again.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *Components, err error) {
	c := &Components{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			c.Close(context.Background())
		}
	}()

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = monitoring.NewMetrics(c.Registry)

	if c.Tracing, err = monitoring.NewTracingManager(ctx, &cfg.Tracing, log); err != nil {
		return nil, err
	}

	if c.DB, err = postgres.NewDBConnection(ctx, &cfg.Database, log); err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err = c.DB.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.Redis.Enabled {
		if c.Redis, err = redis.NewRedisConnection(ctx, &cfg.Redis, log); err != nil {
			return nil, err
		}
	}

	secrets, err := kms.NewSecretSource(cfg, log)
	if err != nil {
		return nil, err
	}
	secret, err := secrets.Secret(ctx)
	if err != nil {
		return nil, err
	}
	cipher, err := crypto.NewAESGCMCipher(secret)
	if err != nil {
		return nil, err
	}
	hasher, err := crypto.NewDigestHasher(cfg.Crypto.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	generator, err := crypto.NewKeyGenerator(cfg.Signing)
	if err != nil {
		return nil, err
	}

	c.Events = audit.NewEventPublisher(cfg.Kafka, log)

	owner := nodeID()
	switch cfg.Rotation.LockBackend {
	case "redis":
		c.Locks = redis.NewClusterLock(c.Redis, owner, nil, log)
	default:
		c.Locks = postgres.NewLockRepository(c.DB, owner, nil, log)
	}

	var records repository.AuthorizationRepository = postgres.NewAuthorizationRepository(c.DB, log)
	if cfg.Store.RecordCacheEnabled && c.Redis != nil {
		records = redis.NewCachingAuthorizationRepository(records, c.Redis, cfg.Store.RecordCacheTTL, c.Metrics, log)
	}
	clients := cache.NewAccessibilityCache(postgres.NewClientDirectory(c.DB), cfg.Store.AccessibilityCacheTTL, c.Metrics)
	c.SigningKeys = postgres.NewSigningKeyRepository(c.DB, log)

	pipeline := application.NewCryptoPipeline(cfg.Crypto, c.Metrics)
	c.Authorizations = application.NewAuthorizationService(records, clients, cipher, hasher, pipeline, c.Events, c.Metrics, cfg.Store, log)

	rotation, deprecation := cfg.Rotation.Periods(cfg.Tokens.AccessTokenTTL)
	c.Rotation = application.NewKeyRotationService(c.SigningKeys, generator, cipher, c.Events, c.Metrics, rotation, deprecation, nil, log)
	c.Signer = application.NewTokenSigner(c.SigningKeys, generator, cipher, c.Metrics, rotation, deprecation, cfg.Tokens.AccessTokenTTL, nil, log)

	var purger *application.AuthorizationService
	if cfg.Rotation.PurgeExpired {
		purger = c.Authorizations
	}
	c.Scheduler = application.NewRotationScheduler(c.Rotation, purger, c.Locks,
		service.LockHold{Min: cfg.Rotation.LockMinHold, Max: cfg.Rotation.LockMaxHold},
		cfg.Rotation.Interval, c.Metrics, log)
	c.Signer.WithKeyRefresher(c.Scheduler)

	log.Info(ctx, "Service graph assembled",
		logger.String("node_id", owner),
		logger.String("key_type", string(generator.Type())),
		logger.Duration("rotation_period", rotation),
		logger.Duration("deprecation_period", deprecation),
		logger.Bool("redis", c.Redis != nil),
		logger.Bool("kafka", cfg.Kafka.Enabled),
	)
	return c, nil
}

// HealthChecks returns the dependency checks for the health endpoints.
func (c *Components) HealthChecks() map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{"database": c.DB}
	if c.Redis != nil {
		checks["redis"] = c.Redis
	}
	return checks
}

// Close releases every opened resource.
func (c *Components) Close(ctx context.Context) {
	if c.Events != nil {
		if err := c.Events.Close(); err != nil {
			c.Logger.Warn(ctx, "Failed to close event publisher", logger.Err(err))
		}
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
	if c.Tracing != nil {
		if err := c.Tracing.Shutdown(ctx); err != nil {
			c.Logger.Warn(ctx, "Failed to shut down tracing", logger.Err(err))
		}
	}
}

func nodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
