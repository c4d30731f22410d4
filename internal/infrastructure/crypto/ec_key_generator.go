package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"fmt"

	"github.com/go-jose/go-jose/v4"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/errors"
)

// ECKeyGenerator produces ECDSA key pairs.
type ECKeyGenerator struct {
	curve elliptic.Curve
}

var _ service.KeyGenerator = (*ECKeyGenerator)(nil)

// NewECKeyGenerator returns a generator for "P-256", "P-384" or "P-521".
func NewECKeyGenerator(curveName string) (*ECKeyGenerator, error) {
	switch curveName {
	case "", "P-256":
		return &ECKeyGenerator{curve: elliptic.P256()}, nil
	case "P-384":
		return &ECKeyGenerator{curve: elliptic.P384()}, nil
	case "P-521":
		return &ECKeyGenerator{curve: elliptic.P521()}, nil
	default:
		return nil, errors.ErrConfiguration(fmt.Sprintf("unsupported EC curve %q", curveName))
	}
}

// Type reports that this generator produces EC keys.
func (g *ECKeyGenerator) Type() models.KeyType { return models.KeyTypeEC }

// GenerateKeyPair returns a fresh EC key pair as PEM encoded public and private keys.
func (g *ECKeyGenerator) GenerateKeyPair() (string, string, error) {
	priv, err := ecdsa.GenerateKey(g.curve, rand.Reader)
	if err != nil {
		return "", "", errors.ErrCryptoFailure("failed to generate EC key").WithCause(err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return "", "", errors.ErrCryptoFailure("failed to marshal EC public key").WithCause(err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", errors.ErrCryptoFailure("failed to marshal EC private key").WithCause(err)
	}
	return encodePEM("PUBLIC KEY", pubDER), encodePEM("PRIVATE KEY", privDER), nil
}

// BuildKey derives the signature algorithm from the curve of the stored public key,
// so keys generated under an earlier curve setting keep verifying.
func (g *ECKeyGenerator) BuildKey(id, publicPEM, privatePEM string) (jose.JSONWebKey, error) {
	parsed, err := parsePublicKey(publicPEM)
	if err != nil {
		return jose.JSONWebKey{}, err
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return jose.JSONWebKey{}, errors.ErrCryptoFailure(fmt.Sprintf("key %s is not an EC public key", id))
	}
	alg, err := deriveECAlgorithm(pub.Curve)
	if err != nil {
		return jose.JSONWebKey{}, err
	}

	jwk := jose.JSONWebKey{Key: pub, KeyID: id, Algorithm: alg, Use: "sig"}
	if privatePEM == "" {
		return jwk, nil
	}

	parsedPriv, err := parsePrivateKey(privatePEM)
	if err != nil {
		return jose.JSONWebKey{}, err
	}
	priv, ok := parsedPriv.(*ecdsa.PrivateKey)
	if !ok || !priv.PublicKey.Equal(pub) {
		return jose.JSONWebKey{}, errors.ErrCryptoFailure(fmt.Sprintf("private key of %s does not match its public key", id))
	}
	jwk.Key = priv
	return jwk, nil
}

func deriveECAlgorithm(curve elliptic.Curve) (string, error) {
	switch curve {
	case elliptic.P256():
		return string(jose.ES256), nil
	case elliptic.P384():
		return string(jose.ES384), nil
	case elliptic.P521():
		return string(jose.ES512), nil
	default:
		return "", errors.ErrCryptoFailure(fmt.Sprintf("unsupported EC curve %s", curve.Params().Name))
	}
}
