package bootstrap

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authstore/internal/application"
	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/pkg/logger"
)

func sqliteConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			Database:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
			AutoMigrate: true,
		},
		Crypto:   config.CryptoConfig{SecretSource: "static", Secret: "bootstrap-test-secret", HashAlgorithm: "sha256", Timeout: time.Second, OverallTimeout: time.Second},
		Tokens:   config.TokensConfig{AccessTokenTTL: 5 * time.Minute},
		Signing:  config.SigningConfig{KeyType: "EC", ECCurve: "P-256"},
		Rotation: config.RotationConfig{LockBackend: "database", LockMinHold: time.Second, LockMaxHold: time.Minute},
		Store:    config.StoreConfig{AccessibilityCacheTTL: time.Minute},
	}
}

func TestBuild_SQLite(t *testing.T) {
	ctx := context.Background()
	c, err := Build(ctx, sqliteConfig(), logger.NewNoopLogger())
	require.NoError(t, err)
	defer c.Close(ctx)

	assert.Nil(t, c.Redis)
	checks := c.HealthChecks()
	require.Contains(t, checks, "database")
	assert.NotContains(t, checks, "redis")
	assert.NoError(t, checks["database"].Ping(ctx))

	rotation, deprecation := c.Rotation.Periods()
	assert.Equal(t, 20*time.Minute, rotation)
	assert.Equal(t, 5*time.Minute, deprecation)

	ran, err := c.Scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	token, err := c.Signer.Sign(ctx, models.RequestContext{TenantID: "tenant-1", Host: "auth.example.com"},
		application.TokenRequest{ClientID: "client-a"})
	require.NoError(t, err)
	claims, err := c.Signer.Verify(ctx, token.Value)
	require.NoError(t, err)
	assert.Equal(t, "client-a", claims["client_id"])
}

func TestBuild_FailsOnBadSecretSource(t *testing.T) {
	cfg := sqliteConfig()
	cfg.Crypto.SecretSource = "none"
	_, err := Build(context.Background(), cfg, logger.NewNoopLogger())
	assert.Error(t, err)
}
