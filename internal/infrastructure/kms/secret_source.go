// Package kms resolves the token cipher secret from its configured source.
package kms

import (
	"context"

	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

// StaticSecretSource serves a secret taken from configuration.
type StaticSecretSource struct {
	secret string
}

var _ service.SecretSource = (*StaticSecretSource)(nil)

// NewStaticSecretSource creates a source returning secret.
func NewStaticSecretSource(secret string) *StaticSecretSource {
	return &StaticSecretSource{secret: secret}
}

// Secret returns the configured secret.
func (s *StaticSecretSource) Secret(ctx context.Context) (string, error) {
	if s.secret == "" {
		return "", errors.ErrConfiguration("cipher secret is empty")
	}
	return s.secret, nil
}

// NewSecretSource builds the source named by cfg.Crypto.SecretSource.
func NewSecretSource(cfg *config.Config, log logger.Logger) (service.SecretSource, error) {
	switch cfg.Crypto.SecretSource {
	case "static":
		return NewStaticSecretSource(cfg.Crypto.Secret), nil
	case "vault":
		client, err := NewVaultClient(cfg.Vault)
		if err != nil {
			return nil, err
		}
		return NewVaultSecretSource(cfg.Vault, client, log), nil
	default:
		return nil, errors.ErrConfiguration("unsupported secret source " + cfg.Crypto.SecretSource)
	}
}
