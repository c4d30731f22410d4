package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/logger"
)

func TestClusterLock_MinAndMaxHold(t *testing.T) {
	conn, mr := newTestConnection(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	hold := service.LockHold{Min: 5 * time.Minute, Max: 20 * time.Minute}

	nodeA := NewClusterLock(conn, "node-a", clock, logger.NewNoopLogger())
	nodeB := NewClusterLock(conn, "node-b", clock, logger.NewNoopLogger())

	ok, err := nodeA.TryLock(ctx, "rotation", hold)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = nodeB.TryLock(ctx, "rotation", hold)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(time.Minute)
	require.NoError(t, nodeA.Unlock(ctx, "rotation", hold))
	assert.Equal(t, 4*time.Minute, mr.TTL("test:lock:rotation"))

	mr.FastForward(4 * time.Minute)
	ok, err = nodeB.TryLock(ctx, "rotation", hold)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(20 * time.Minute)
	ok, err = nodeA.TryLock(ctx, "rotation", hold)
	require.NoError(t, err)
	assert.True(t, ok, "max hold frees a lock that was never released")
}

func TestClusterLock_ReleaseAfterMinHoldDeletes(t *testing.T) {
	conn, mr := newTestConnection(t)
	ctx := context.Background()
	now := time.Now()
	lock := NewClusterLock(conn, "node-a", func() time.Time { return now }, logger.NewNoopLogger())
	hold := service.LockHold{Min: time.Minute, Max: time.Hour}

	ok, err := lock.TryLock(ctx, "purge", hold)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	require.NoError(t, lock.Unlock(ctx, "purge", hold))
	assert.False(t, mr.Exists("test:lock:purge"))
}

func TestClusterLock_DoesNotReleaseForeignLock(t *testing.T) {
	conn, mr := newTestConnection(t)
	ctx := context.Background()
	hold := service.LockHold{Max: time.Hour}
	lock := NewClusterLock(conn, "node-a", nil, logger.NewNoopLogger())

	ok, err := lock.TryLock(ctx, "rotation", hold)
	require.NoError(t, err)
	require.True(t, ok)

	// The key lapsed and another node took it.
	require.NoError(t, mr.Set("test:lock:rotation", "node-b"))
	require.NoError(t, lock.Unlock(ctx, "rotation", hold))

	got, err := mr.Get("test:lock:rotation")
	require.NoError(t, err)
	assert.Equal(t, "node-b", got)
}
