package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/authstore/pkg/errors"
)

func TestAESGCMCipher_RoundTrip(t *testing.T) {
	c, err := NewAESGCMCipher("shared-cluster-secret")
	require.NoError(t, err)

	for _, plaintext := range []string{"", "code-123", "eyJhbGciOiJFUzI1NiJ9.eyJzdWIiOiJhbGljZSJ9.c2ln", "ключ-άλφα-鍵"} {
		ciphertext, err := c.Encrypt(plaintext)
		require.NoError(t, err)

		decrypted, err := c.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestAESGCMCipher_NonDeterministic(t *testing.T) {
	c, err := NewAESGCMCipher("shared-cluster-secret")
	require.NoError(t, err)

	a, err := c.Encrypt("same-input")
	require.NoError(t, err)
	b, err := c.Encrypt("same-input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAESGCMCipher_Layout(t *testing.T) {
	c, err := NewAESGCMCipher("shared-cluster-secret")
	require.NoError(t, err)

	ciphertext, err := c.Encrypt("abc")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	assert.Len(t, raw, ivLength+saltLength+len("abc")+tagLength)
}

func TestAESGCMCipher_Failures(t *testing.T) {
	c, err := NewAESGCMCipher("secret-one")
	require.NoError(t, err)
	other, err := NewAESGCMCipher("secret-two")
	require.NoError(t, err)

	valid, err := c.Encrypt("payload")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(valid)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name       string
		cipher     *AESGCMCipher
		ciphertext string
	}{
		{"not base64", c, "!!!not-base64!!!"},
		{"too short", c, base64.StdEncoding.EncodeToString([]byte("short"))},
		{"tampered tag", c, tampered},
		{"wrong secret", other, valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cipher.Decrypt(tt.ciphertext)
			require.Error(t, err)
			assert.True(t, errors.IsCryptoFailure(err))
		})
	}
}

func TestNewAESGCMCipher_EmptySecret(t *testing.T) {
	_, err := NewAESGCMCipher("")
	assert.Error(t, err)
}
