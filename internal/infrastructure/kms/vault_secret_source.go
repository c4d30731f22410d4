package kms

import (
	"context"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/patrickmn/go-cache"

	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

const secretCacheKey = "cipher_secret"

// VaultSecretSource reads the cipher secret from a Vault KV v2 engine. The value is
// kept in memory for a short time so that a Vault outage does not fail every request.
type VaultSecretSource struct {
	client *vault.Client
	config config.VaultConfig
	cache  *cache.Cache
	logger logger.Logger
}

var _ service.SecretSource = (*VaultSecretSource)(nil)

// NewVaultClient creates a Vault API client for cfg.
func NewVaultClient(cfg config.VaultConfig) (*vault.Client, error) {
	vcfg := vault.DefaultConfig()
	vcfg.Address = cfg.Address
	if cfg.Timeout > 0 {
		vcfg.Timeout = cfg.Timeout
	}
	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, errors.ErrConfiguration("failed to create vault client").WithCause(err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	return client, nil
}

// NewVaultSecretSource creates a Vault backed source.
func NewVaultSecretSource(cfg config.VaultConfig, client *vault.Client, log logger.Logger) *VaultSecretSource {
	return &VaultSecretSource{
		client: client,
		config: cfg,
		cache:  cache.New(5*time.Minute, 10*time.Minute),
		logger: log.WithComponent("vault_secret_source"),
	}
}

// Secret returns the secret stored under the configured KV v2 path and key.
func (s *VaultSecretSource) Secret(ctx context.Context) (string, error) {
	if cached, ok := s.cache.Get(secretCacheKey); ok {
		return cached.(string), nil
	}

	path := fmt.Sprintf("%s/data/%s", s.config.MountPath, s.config.SecretPath)
	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		s.logger.Error(ctx, "Failed to read cipher secret from Vault", err, logger.String("path", path))
		return "", errors.ErrUnavailable("vault").WithCause(err)
	}
	if secret == nil || secret.Data["data"] == nil {
		return "", errors.ErrConfiguration(fmt.Sprintf("no secret found in vault at %s", path))
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", errors.ErrConfiguration("invalid secret format in vault")
	}
	value, ok := data[s.config.SecretKey].(string)
	if !ok || value == "" {
		return "", errors.ErrConfiguration(fmt.Sprintf("key %q not found or not a string in vault secret", s.config.SecretKey))
	}

	s.cache.SetDefault(secretCacheKey, value)
	return value, nil
}
