// Package service defines the interfaces for domain services.
package service

import (
	"context"

	"github.com/go-jose/go-jose/v4"
	"github.com/turtacn/authstore/internal/domain/models"
)

// TokenCipher provides authenticated symmetric encryption of token values.
// TokenCipher 提供令牌值的认证对称加密。
type TokenCipher interface {
	// Encrypt returns an opaque, non-deterministic ciphertext of plaintext.
	Encrypt(plaintext string) (string, error)

	// Decrypt reverses Encrypt. Tampered or foreign ciphertexts fail.
	Decrypt(ciphertext string) (string, error)
}

// TokenHasher produces deterministic lookup digests of token values.
// TokenHasher 生成令牌值的确定性查找摘要。
type TokenHasher interface {
	// Hash returns the lowercase hex digest of value.
	Hash(value string) string

	// Verify compares value against digest in constant time.
	Verify(value, digest string) bool
}

// KeyGenerator creates and materialises key pairs of one KeyType.
// KeyGenerator 创建并还原某一 KeyType 的密钥对。
type KeyGenerator interface {
	// Type returns the key family the generator produces.
	Type() models.KeyType

	// GenerateKeyPair returns a fresh PEM encoded PKIX public key and PKCS#8 private key.
	GenerateKeyPair() (publicPEM, privatePEM string, err error)

	// BuildKey materialises a stored pair as a JWK carrying kid, use and alg. When
	// privatePEM is empty the JWK holds only the public key.
	BuildKey(id, publicPEM, privatePEM string) (jose.JSONWebKey, error)
}

// SecretSource supplies the shared secret the token cipher derives its keys from.
type SecretSource interface {
	Secret(ctx context.Context) (string, error)
}
