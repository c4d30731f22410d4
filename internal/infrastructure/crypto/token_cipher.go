// Package crypto implements the token cipher, the token hasher and the signing key
// generators.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/errors"
)

const (
	// ivLength is the GCM nonce size.
	ivLength = 12
	// saltLength is the PBKDF2 salt size.
	saltLength = 16
	// tagLength is the GCM authentication tag size in bytes (128 bits).
	tagLength = 16
	// keyLength selects AES-256.
	keyLength = 32
	// pbkdf2Iterations is the PBKDF2-HMAC-SHA256 work factor.
	pbkdf2Iterations = 65536
)

// AESGCMCipher encrypts token values with AES-256-GCM under a key derived per call
// from a shared secret. The output is base64(iv || salt || ciphertext+tag), so every
// node sharing the secret can decrypt what any other node wrote.
type AESGCMCipher struct {
	secret []byte
}

var _ service.TokenCipher = (*AESGCMCipher)(nil)

// NewAESGCMCipher creates a cipher bound to secret.
func NewAESGCMCipher(secret string) (*AESGCMCipher, error) {
	if secret == "" {
		return nil, errors.ErrConfiguration("token cipher secret must not be empty")
	}
	return &AESGCMCipher{secret: []byte(secret)}, nil
}

// Encrypt returns a fresh ciphertext of plaintext. Two calls on the same input differ.
func (c *AESGCMCipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", errors.ErrCryptoFailure("failed to generate iv").WithCause(err)
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.ErrCryptoFailure("failed to generate salt").WithCause(err)
	}

	aead, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)

	out := make([]byte, 0, ivLength+saltLength+len(sealed))
	out = append(out, iv...)
	out = append(out, salt...)
	out = append(out, sealed...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Malformed input, a different secret or a tag mismatch
// all fail with a crypto failure.
func (c *AESGCMCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.ErrCryptoFailure("ciphertext is not valid base64").WithCause(err)
	}
	if len(raw) < ivLength+saltLength+tagLength {
		return "", errors.ErrCryptoFailure(fmt.Sprintf("ciphertext too short: %d bytes", len(raw)))
	}

	iv := raw[:ivLength]
	salt := raw[ivLength : ivLength+saltLength]
	sealed := raw[ivLength+saltLength:]

	aead, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", errors.ErrCryptoFailure("ciphertext authentication failed").WithCause(err)
	}
	return string(plaintext), nil
}

func (c *AESGCMCipher) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.secret, salt, pbkdf2Iterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.ErrCryptoFailure("failed to create block cipher").WithCause(err)
	}
	aead, err := cipher.NewGCMWithTagSize(block, tagLength)
	if err != nil {
		return nil, errors.ErrCryptoFailure("failed to create gcm").WithCause(err)
	}
	return aead, nil
}
