// Package postgres provides the relational persistence layer of the authorization store.
// It runs on PostgreSQL in production and on SQLite in tests, both through gorm.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

// DBConnection manages the gorm handle and its connection pool.
type DBConnection struct {
	db     *gorm.DB
	config *config.DatabaseConfig
	logger logger.Logger
}

// NewDBConnection opens the configured database, applies pool settings and performs an
// initial health check.
func NewDBConnection(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	if cfg == nil {
		return nil, errors.ErrConfiguration("database configuration is required")
	}
	log = log.WithComponent("database")

	log.Info(ctx, "Initializing database connection",
		logger.String("driver", cfg.Driver),
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("database", cfg.Database),
		logger.Int("max_conns", cfg.MaxConns),
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.GetDSN())
	default:
		dialector = postgres.Open(cfg.GetDSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  NewGormLogger(log, cfg.SlowQueryThreshold),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		log.Error(ctx, "Failed to open database", err)
		return nil, errors.ErrUnavailable("database").WithCause(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.ErrUnavailable("database").WithCause(err)
	}
	if cfg.Driver == "sqlite" {
		// SQLite serialises writers; one connection keeps in-memory databases shared.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
		sqlDB.SetMaxIdleConns(cfg.MinConns)
		sqlDB.SetConnMaxLifetime(cfg.MaxConnLifetime)
		sqlDB.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	}

	conn := &DBConnection{db: db, config: cfg, logger: log}
	if err := conn.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	log.Info(ctx, "Database connection initialized successfully")
	return conn, nil
}

// FromGorm wraps an already opened gorm handle.
func FromGorm(db *gorm.DB, cfg *config.DatabaseConfig, log logger.Logger) *DBConnection {
	return &DBConnection{db: db, config: cfg, logger: log.WithComponent("database")}
}

// DB returns the gorm handle used by the repositories.
func (c *DBConnection) DB() *gorm.DB {
	return c.db
}

// TxOptions returns the options of write transactions.
func (c *DBConnection) TxOptions() *sql.TxOptions {
	if c.config != nil && c.config.SerializableWrites {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// Ping verifies database connectivity.
func (c *DBConnection) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return errors.ErrUnavailable("database").WithCause(err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		c.logger.Error(ctx, "Database ping failed", err)
		return errors.ErrUnavailable("database").WithCause(err)
	}

	if latency := time.Since(start); latency > 100*time.Millisecond {
		c.logger.Warn(ctx, "High database latency detected",
			logger.Int64("latency_ms", latency.Milliseconds()),
			logger.Int("threshold_ms", 100),
		)
	}
	return nil
}

// HealthCheck returns pool statistics after a successful ping.
func (c *DBConnection) HealthCheck(ctx context.Context) (map[string]interface{}, error) {
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return nil, errors.ErrUnavailable("database").WithCause(err)
	}
	stats := sqlDB.Stats()
	return map[string]interface{}{
		"status":               "healthy",
		"open_connections":     stats.OpenConnections,
		"in_use_connections":   stats.InUse,
		"idle_connections":     stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
		"max_open_connections": stats.MaxOpenConnections,
	}, nil
}

// Close shuts down the connection pool.
func (c *DBConnection) Close() {
	sqlDB, err := c.db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		c.logger.Error(context.Background(), "Failed to close database", err)
		return
	}
	c.logger.Info(context.Background(), "Database connection closed")
}
