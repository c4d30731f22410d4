// Package cache holds in-process caches in front of slow directory lookups.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/repository"
	"github.com/turtacn/authstore/internal/domain/service"
)

const accessibilityCacheType = "client_accessibility"

// AccessibilityCache memoizes ClientDirectory.IsAccessible answers for a short TTL.
// A client invalidated in the directory keeps its cached answer until the entry
// expires. FindClient is not cached.
type AccessibilityCache struct {
	inner   repository.ClientDirectory
	entries *gocache.Cache
	metrics service.Metrics
}

var _ repository.ClientDirectory = (*AccessibilityCache)(nil)

// NewAccessibilityCache wraps inner. A non-positive ttl disables caching.
func NewAccessibilityCache(inner repository.ClientDirectory, ttl time.Duration, metrics service.Metrics) repository.ClientDirectory {
	if ttl <= 0 {
		return inner
	}
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	return &AccessibilityCache{
		inner:   inner,
		entries: gocache.New(ttl, 2*ttl),
		metrics: metrics,
	}
}

func (c *AccessibilityCache) FindClient(ctx context.Context, clientID string) (*models.RegisteredClient, error) {
	return c.inner.FindClient(ctx, clientID)
}

// IsAccessible answers from the cache when possible. Errors are never cached.
func (c *AccessibilityCache) IsAccessible(ctx context.Context, clientID, tenantID string) (bool, error) {
	key := tenantID + "/" + clientID
	if v, ok := c.entries.Get(key); ok {
		c.metrics.RecordCacheAccess(accessibilityCacheType, true)
		return v.(bool), nil
	}
	c.metrics.RecordCacheAccess(accessibilityCacheType, false)

	ok, err := c.inner.IsAccessible(ctx, clientID, tenantID)
	if err != nil {
		return false, err
	}
	c.entries.SetDefault(key, ok)
	return ok, nil
}
