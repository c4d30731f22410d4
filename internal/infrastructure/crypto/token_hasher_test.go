package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestHasher(t *testing.T) {
	h256, err := NewDigestHasher("sha256")
	require.NoError(t, err)
	h512, err := NewDigestHasher("SHA512")
	require.NoError(t, err)

	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h256.Hash("abc"))
	assert.Equal(t, h256.Hash("token"), h256.Hash("token"))
	assert.NotEqual(t, h256.Hash("token-a"), h256.Hash("token-b"))
	assert.Len(t, h512.Hash("abc"), 128)

	digest := h256.Hash("refresh-token")
	assert.True(t, h256.Verify("refresh-token", digest))
	assert.False(t, h256.Verify("other-token", digest))

	_, err = NewDigestHasher("md5")
	assert.Error(t, err)
}
