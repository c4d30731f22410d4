package crypto

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/pkg/errors"
)

func TestNewKeyGenerator(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SigningConfig
		want    models.KeyType
		wantErr bool
	}{
		{"ec default curve", config.SigningConfig{KeyType: "EC"}, models.KeyTypeEC, false},
		{"rsa lower case", config.SigningConfig{KeyType: "rsa", RSABits: 2048}, models.KeyTypeRSA, false},
		{"unknown type", config.SigningConfig{KeyType: "OKP"}, "", true},
		{"bad curve", config.SigningConfig{KeyType: "EC", ECCurve: "secp256k1"}, "", true},
		{"small rsa", config.SigningConfig{KeyType: "RSA", RSABits: 1024}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := NewKeyGenerator(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, gen.Type())
		})
	}
}

func TestECKeyGenerator_BuildKey(t *testing.T) {
	curves := map[string]jose.SignatureAlgorithm{
		"P-256": jose.ES256,
		"P-384": jose.ES384,
		"P-521": jose.ES512,
	}
	for curve, alg := range curves {
		t.Run(curve, func(t *testing.T) {
			gen, err := NewECKeyGenerator(curve)
			require.NoError(t, err)

			pub, priv, err := gen.GenerateKeyPair()
			require.NoError(t, err)
			assert.Contains(t, pub, "BEGIN PUBLIC KEY")
			assert.Contains(t, priv, "BEGIN PRIVATE KEY")

			jwk, err := gen.BuildKey("kid-1", pub, priv)
			require.NoError(t, err)
			assert.Equal(t, "kid-1", jwk.KeyID)
			assert.Equal(t, string(alg), jwk.Algorithm)
			assert.Equal(t, "sig", jwk.Use)
			_, isPrivate := jwk.Key.(*ecdsa.PrivateKey)
			assert.True(t, isPrivate)
			pubJWK := jwk.Public()
			assert.True(t, pubJWK.IsPublic())

			publicOnly, err := gen.BuildKey("kid-1", pub, "")
			require.NoError(t, err)
			assert.True(t, publicOnly.IsPublic())
		})
	}
}

func TestECKeyGenerator_AlgorithmFollowsStoredCurve(t *testing.T) {
	p384, err := NewECKeyGenerator("P-384")
	require.NoError(t, err)
	pub, priv, err := p384.GenerateKeyPair()
	require.NoError(t, err)

	p256, err := NewECKeyGenerator("P-256")
	require.NoError(t, err)
	jwk, err := p256.BuildKey("k", pub, priv)
	require.NoError(t, err)
	assert.Equal(t, string(jose.ES384), jwk.Algorithm)
}

func TestRSAKeyGenerator_BuildKey(t *testing.T) {
	gen, err := NewRSAKeyGenerator(2048)
	require.NoError(t, err)

	pub, priv, err := gen.GenerateKeyPair()
	require.NoError(t, err)

	jwk, err := gen.BuildKey("rsa-1", pub, priv)
	require.NoError(t, err)
	assert.Equal(t, string(jose.RS256), jwk.Algorithm)
	_, isPrivate := jwk.Key.(*rsa.PrivateKey)
	assert.True(t, isPrivate)
}

func TestBuildKey_Mismatch(t *testing.T) {
	ec, err := NewECKeyGenerator("P-256")
	require.NoError(t, err)
	rsaGen, err := NewRSAKeyGenerator(2048)
	require.NoError(t, err)

	ecPub, ecPriv, err := ec.GenerateKeyPair()
	require.NoError(t, err)
	otherPub, _, err := ec.GenerateKeyPair()
	require.NoError(t, err)

	_, err = ec.BuildKey("k", otherPub, ecPriv)
	assert.True(t, errors.IsCryptoFailure(err))

	_, err = rsaGen.BuildKey("k", ecPub, "")
	assert.True(t, errors.IsCryptoFailure(err))

	_, err = ec.BuildKey("k", "not a pem", "")
	assert.True(t, errors.IsCryptoFailure(err))
}
