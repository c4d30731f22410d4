package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

// releaseScript keeps the lock for the rest of the minimum hold, or deletes it once
// the minimum hold has passed. Only the owner may release.
// KEYS[1] lock key, ARGV[1] owner, ARGV[2] remaining min hold in ms.
var releaseScript = redis.NewScript(`
local value = redis.call("GET", KEYS[1])
if value ~= ARGV[1] then
	return 0
end
local remaining = tonumber(ARGV[2])
if remaining > 0 then
	redis.call("PEXPIRE", KEYS[1], remaining)
else
	redis.call("DEL", KEYS[1])
end
return 1
`)

// ClusterLock implements service.LockProvider with SET NX PX. The key expires after
// the maximum hold, which frees the lock of a node that died while holding it.
type ClusterLock struct {
	conn     *RedisConnection
	owner    string
	now      func() time.Time
	mu       sync.Mutex
	acquired map[string]time.Time
	logger   logger.Logger
}

var _ service.LockProvider = (*ClusterLock)(nil)

// NewClusterLock creates a lock provider identifying itself as owner.
func NewClusterLock(conn *RedisConnection, owner string, now func() time.Time, log logger.Logger) *ClusterLock {
	if now == nil {
		now = time.Now
	}
	return &ClusterLock{
		conn:     conn,
		owner:    owner,
		now:      now,
		acquired: make(map[string]time.Time),
		logger:   log.WithComponent("cluster_lock"),
	}
}

// TryLock acquires name for at most hold.Max without waiting.
func (l *ClusterLock) TryLock(ctx context.Context, name string, hold service.LockHold) (bool, error) {
	ok, err := l.conn.Client().SetNX(ctx, l.key(name), l.owner, hold.Max).Result()
	if err != nil {
		return false, errors.ErrUnavailable("redis").WithCause(err)
	}
	if ok {
		l.mu.Lock()
		l.acquired[name] = l.now()
		l.mu.Unlock()
	}
	return ok, nil
}

// Unlock releases name, keeping it until hold.Min has passed since acquisition.
func (l *ClusterLock) Unlock(ctx context.Context, name string, hold service.LockHold) error {
	l.mu.Lock()
	acquiredAt, ok := l.acquired[name]
	delete(l.acquired, name)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	remaining := acquiredAt.Add(hold.Min).Sub(l.now())
	if remaining < 0 {
		remaining = 0
	}
	released, err := releaseScript.Run(ctx, l.conn.Client(), []string{l.key(name)}, l.owner, remaining.Milliseconds()).Int()
	if err != nil {
		return errors.ErrUnavailable("redis").WithCause(err)
	}
	if released == 0 {
		l.logger.Warn(ctx, "Lock expired before release", logger.String("lock", name))
	}
	return nil
}

func (l *ClusterLock) key(name string) string {
	return l.conn.Key("lock", name)
}
