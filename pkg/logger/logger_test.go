package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		key   string
		value interface{}
		want  interface{}
	}{
		{"access_token", "eyJhbGciOiJFUzI1NiJ9.payload.sig", "eyJh***.sig"},
		{"client_secret", "short", "***"},
		{"private_key", 42, "***REDACTED***"},
		{"token_type", "access_token", "access_token"},
		{"token_hash_prefix", "ab12cd34", "ab12cd34"},
		{"record_id", "r-1", "r-1"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.key, tt.value))
		})
	}
}

func TestFieldConstructors(t *testing.T) {
	assert.Equal(t, Field{Key: "error", Value: nil}, Err(nil))
	assert.Equal(t, "n", Int("n", 3).Key)
	assert.Equal(t, []string{"a"}, Strings("s", []string{"a"}).Value)
}
