package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSigningKeyPair_State(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rotation := 4 * time.Hour
	deprecation := time.Hour
	key := &SigningKeyPair{ID: "k1", KeyType: KeyTypeEC, CreatedAt: t0}

	tests := []struct {
		name string
		at   time.Time
		want KeyState
	}{
		{"fresh", t0, KeyStateActive},
		{"just before rotation", t0.Add(rotation - time.Second), KeyStateActive},
		{"at rotation", t0.Add(rotation), KeyStateDeprecated},
		{"just before invalidation", t0.Add(rotation + deprecation - time.Second), KeyStateDeprecated},
		{"at invalidation", t0.Add(rotation + deprecation), KeyStateInvalidated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, key.State(tt.at, rotation, deprecation))
		})
	}

	invalidatedAt := t0.Add(time.Minute)
	key.InvalidatedAt = &invalidatedAt
	assert.Equal(t, KeyStateInvalidated, key.State(t0.Add(2*time.Minute), rotation, deprecation))
}

func TestParseKeyType(t *testing.T) {
	kt, ok := ParseKeyType(" ec ")
	assert.True(t, ok)
	assert.Equal(t, KeyTypeEC, kt)

	kt, ok = ParseKeyType("RSA")
	assert.True(t, ok)
	assert.Equal(t, KeyTypeRSA, kt)

	_, ok = ParseKeyType("DSA")
	assert.False(t, ok)
}
