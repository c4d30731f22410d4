package kms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

func vaultConfig(address string) config.VaultConfig {
	return config.VaultConfig{
		Address:    address,
		Token:      "root",
		MountPath:  "secret",
		SecretPath: "authstore/cipher",
		SecretKey:  "token_cipher_secret",
	}
}

func TestVaultSecretSource_ReadsAndCaches(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1/secret/data/authstore/cipher", r.URL.Path)
		assert.Equal(t, "root", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"data": map[string]interface{}{"token_cipher_secret": "s3cr3t"},
			},
		})
	}))
	defer server.Close()

	cfg := vaultConfig(server.URL)
	client, err := NewVaultClient(cfg)
	require.NoError(t, err)
	source := NewVaultSecretSource(cfg, client, logger.NewNoopLogger())

	for i := 0; i < 3; i++ {
		secret, err := source.Secret(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "s3cr3t", secret)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestVaultSecretSource_MissingKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"data": map[string]interface{}{"other": "x"}},
		})
	}))
	defer server.Close()

	cfg := vaultConfig(server.URL)
	client, err := NewVaultClient(cfg)
	require.NoError(t, err)

	_, err = NewVaultSecretSource(cfg, client, logger.NewNoopLogger()).Secret(context.Background())
	assert.Equal(t, "configuration_error", string(errors.CodeOf(err)))
}

func TestVaultSecretSource_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := vaultConfig(server.URL)
	client, err := NewVaultClient(cfg)
	require.NoError(t, err)
	client.SetMaxRetries(0)

	_, err = NewVaultSecretSource(cfg, client, logger.NewNoopLogger()).Secret(context.Background())
	assert.True(t, errors.IsRetryable(err))
}

func TestNewSecretSource(t *testing.T) {
	cfg := &config.Config{Crypto: config.CryptoConfig{SecretSource: "static", Secret: "abc"}}
	source, err := NewSecretSource(cfg, logger.NewNoopLogger())
	require.NoError(t, err)
	secret, err := source.Secret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", secret)

	_, err = NewStaticSecretSource("").Secret(context.Background())
	assert.Error(t, err)

	cfg.Crypto.SecretSource = "hsm"
	_, err = NewSecretSource(cfg, logger.NewNoopLogger())
	assert.Error(t, err)
}
