package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/pkg/logger"
)

func newTestConnection(t *testing.T) (*RedisConnection, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return FromClient(client, &config.RedisConfig{KeyPrefix: "test:"}, logger.NewNoopLogger()), mr
}
