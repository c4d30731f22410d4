package crypto

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/errors"
)

// generatorFactory builds a generator from the signing configuration.
type generatorFactory func(cfg config.SigningConfig) (service.KeyGenerator, error)

var generatorFactories = map[models.KeyType]generatorFactory{
	models.KeyTypeEC: func(cfg config.SigningConfig) (service.KeyGenerator, error) {
		return NewECKeyGenerator(cfg.ECCurve)
	},
	models.KeyTypeRSA: func(cfg config.SigningConfig) (service.KeyGenerator, error) {
		return NewRSAKeyGenerator(cfg.RSABits)
	},
}

// NewKeyGenerator resolves the generator for the configured key type. It is called
// once at startup; every component of a deployment shares the result.
func NewKeyGenerator(cfg config.SigningConfig) (service.KeyGenerator, error) {
	keyType, ok := models.ParseKeyType(cfg.KeyType)
	if !ok {
		return nil, errors.ErrConfiguration(fmt.Sprintf("unsupported signing key type %q", cfg.KeyType))
	}
	return generatorFactories[keyType](cfg)
}

func encodePEM(blockType string, der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}))
}

func decodePEM(data, expectedType string) ([]byte, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, errors.ErrCryptoFailure("failed to decode PEM block")
	}
	if block.Type != expectedType {
		return nil, errors.ErrCryptoFailure(fmt.Sprintf("unexpected PEM block type %q", block.Type))
	}
	return block.Bytes, nil
}

func parsePublicKey(publicPEM string) (interface{}, error) {
	der, err := decodePEM(publicPEM, "PUBLIC KEY")
	if err != nil {
		return nil, err
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.ErrCryptoFailure("failed to parse public key").WithCause(err)
	}
	return pub, nil
}

func parsePrivateKey(privatePEM string) (interface{}, error) {
	der, err := decodePEM(privatePEM, "PRIVATE KEY")
	if err != nil {
		return nil, err
	}
	priv, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, errors.ErrCryptoFailure("failed to parse private key").WithCause(err)
	}
	return priv, nil
}
