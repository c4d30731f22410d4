package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"strings"

	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/errors"
)

// DigestHasher computes unsalted hex digests of token values for lookups.
type DigestHasher struct {
	newHash func() hash.Hash
}

var _ service.TokenHasher = (*DigestHasher)(nil)

// NewDigestHasher returns a hasher for "sha256" or "sha512".
func NewDigestHasher(algorithm string) (*DigestHasher, error) {
	switch strings.ToLower(algorithm) {
	case "", "sha256":
		return &DigestHasher{newHash: sha256.New}, nil
	case "sha512":
		return &DigestHasher{newHash: sha512.New}, nil
	default:
		return nil, errors.ErrConfiguration("unsupported hash algorithm: " + algorithm)
	}
}

// Hash returns the lowercase hex digest of value.
func (h *DigestHasher) Hash(value string) string {
	d := h.newHash()
	d.Write([]byte(value))
	return hex.EncodeToString(d.Sum(nil))
}

// Verify compares value against digest in constant time.
func (h *DigestHasher) Verify(value, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(value)), []byte(strings.ToLower(digest))) == 1
}
