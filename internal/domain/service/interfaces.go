package service

import (
	"context"
	"time"

	"github.com/turtacn/authstore/internal/domain/models"
)

// EventPublisher emits lifecycle events to other services.
type EventPublisher interface {
	Publish(ctx context.Context, event models.LifecycleEvent) error
	Close() error
}

// LockHold bounds how long a cluster lock is kept. Min keeps the lock past an early
// release so that fast ticks on other nodes are skipped; Max frees the lock of a
// node that died while holding it.
type LockHold struct {
	Min time.Duration
	Max time.Duration
}

// LockProvider grants a named lock to at most one node of the cluster at a time.
type LockProvider interface {
	// TryLock acquires name without waiting and reports whether it was granted.
	TryLock(ctx context.Context, name string, hold LockHold) (bool, error)

	// Unlock releases name, keeping it held until Min has elapsed since acquisition.
	Unlock(ctx context.Context, name string, hold LockHold) error
}
