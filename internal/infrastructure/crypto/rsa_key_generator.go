package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/go-jose/go-jose/v4"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/errors"
)

const minRSABits = 2048

// RSAKeyGenerator produces RSA key pairs signing with RS256.
type RSAKeyGenerator struct {
	bits int
}

var _ service.KeyGenerator = (*RSAKeyGenerator)(nil)

// NewRSAKeyGenerator returns a generator for bits sized keys, 2048 when bits is zero.
func NewRSAKeyGenerator(bits int) (*RSAKeyGenerator, error) {
	if bits == 0 {
		bits = minRSABits
	}
	if bits < minRSABits {
		return nil, errors.ErrConfiguration(fmt.Sprintf("rsa key size %d is below %d bits", bits, minRSABits))
	}
	return &RSAKeyGenerator{bits: bits}, nil
}

// Type reports that this generator produces RSA keys.
func (g *RSAKeyGenerator) Type() models.KeyType { return models.KeyTypeRSA }

// GenerateKeyPair returns a fresh RSA key pair as PEM encoded public and private keys.
func (g *RSAKeyGenerator) GenerateKeyPair() (string, string, error) {
	priv, err := rsa.GenerateKey(rand.Reader, g.bits)
	if err != nil {
		return "", "", errors.ErrCryptoFailure("failed to generate RSA key").WithCause(err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return "", "", errors.ErrCryptoFailure("failed to marshal RSA public key").WithCause(err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", errors.ErrCryptoFailure("failed to marshal RSA private key").WithCause(err)
	}
	return encodePEM("PUBLIC KEY", pubDER), encodePEM("PRIVATE KEY", privDER), nil
}

func (g *RSAKeyGenerator) BuildKey(id, publicPEM, privatePEM string) (jose.JSONWebKey, error) {
	parsed, err := parsePublicKey(publicPEM)
	if err != nil {
		return jose.JSONWebKey{}, err
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return jose.JSONWebKey{}, errors.ErrCryptoFailure(fmt.Sprintf("key %s is not an RSA public key", id))
	}

	jwk := jose.JSONWebKey{Key: pub, KeyID: id, Algorithm: string(jose.RS256), Use: "sig"}
	if privatePEM == "" {
		return jwk, nil
	}

	parsedPriv, err := parsePrivateKey(privatePEM)
	if err != nil {
		return jose.JSONWebKey{}, err
	}
	priv, ok := parsedPriv.(*rsa.PrivateKey)
	if !ok || !priv.PublicKey.Equal(pub) {
		return jose.JSONWebKey{}, errors.ErrCryptoFailure(fmt.Sprintf("private key of %s does not match its public key", id))
	}
	jwk.Key = priv
	return jwk, nil
}
