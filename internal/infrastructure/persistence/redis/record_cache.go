package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/repository"
	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/logger"
)

const recordCacheType = "authorization_record"

// generationGrace keeps a write generation alive past the entity TTL so it outlives
// any read that observed it.
const generationGrace = time.Minute

var errStaleEntity = stderrors.New("entity changed while it was read")

// CachingAuthorizationRepository is a read-through cache in front of an
// AuthorizationRepository. Entities are cached by ID and token lookups are cached
// as pointers to that ID. Writes drop the entity key, so a stale pointer resolves
// through the inner repository and is checked against the lookup before use.
//
// Every write also bumps a per-ID generation. A reader notes the generation before
// it asks the inner repository and caches what it got only while that generation
// is unchanged, so an entity read before a concurrent delete or save is never
// cached after it. Cache failures never fail a request; they are logged and the
// inner repository answers.
type CachingAuthorizationRepository struct {
	inner   repository.AuthorizationRepository
	conn    *RedisConnection
	ttl     time.Duration
	metrics service.Metrics
	logger  logger.Logger
}

var _ repository.AuthorizationRepository = (*CachingAuthorizationRepository)(nil)

// NewCachingAuthorizationRepository wraps inner with a Redis cache.
func NewCachingAuthorizationRepository(inner repository.AuthorizationRepository, conn *RedisConnection, ttl time.Duration, metrics service.Metrics, log logger.Logger) *CachingAuthorizationRepository {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	return &CachingAuthorizationRepository{
		inner:   inner,
		conn:    conn,
		ttl:     ttl,
		metrics: metrics,
		logger:  log.WithComponent("record_cache"),
	}
}

// Save writes through to the inner repository and evicts the stored entity.
func (c *CachingAuthorizationRepository) Save(ctx context.Context, entity *models.AuthorizationEntity) (*models.AuthorizationEntity, error) {
	saved, err := c.inner.Save(ctx, entity)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, saved.ID)
	return saved, nil
}

// DeleteByNaturalKey deletes through the inner repository and evicts the deleted entity.
func (c *CachingAuthorizationRepository) DeleteByNaturalKey(ctx context.Context, key models.NaturalKey) (string, error) {
	id, err := c.inner.DeleteByNaturalKey(ctx, key)
	if err != nil {
		return "", err
	}
	if id != "" {
		c.evict(ctx, id)
	}
	return id, nil
}

// DeleteExpired purges through the inner repository and evicts every purged entity.
func (c *CachingAuthorizationRepository) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	ids, err := c.inner.DeleteExpired(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, ids...)
	return ids, nil
}

// FindByID serves id from the cache, reading through on a miss.
func (c *CachingAuthorizationRepository) FindByID(ctx context.Context, id string) (*models.AuthorizationEntity, error) {
	if entity, ok := c.getEntity(ctx, id); ok {
		c.metrics.RecordCacheAccess(recordCacheType, true)
		return entity, nil
	}
	c.metrics.RecordCacheAccess(recordCacheType, false)
	return c.readThrough(ctx, id)
}

// FindByToken serves typed lookups from the cache. Unspecified lookups always go to
// the inner repository. A miss caches only the pointer; the entity itself is cached
// by the next lookup, which reads it by ID under the generation check.
func (c *CachingAuthorizationRepository) FindByToken(ctx context.Context, lookup repository.TokenLookup) (*models.AuthorizationEntity, error) {
	if lookup.Type == constants.TokenTypeUnspecified {
		return c.inner.FindByToken(ctx, lookup)
	}

	pointer := c.pointerKey(lookup)
	if id, err := c.conn.Client().Get(ctx, pointer).Result(); err == nil {
		if entity, ok := c.resolve(ctx, id); ok && matches(entity, lookup) {
			c.metrics.RecordCacheAccess(recordCacheType, true)
			return entity, nil
		}
	} else if !stderrors.Is(err, redis.Nil) {
		c.logger.Warn(ctx, "Record cache lookup failed", logger.Err(err))
	}
	c.metrics.RecordCacheAccess(recordCacheType, false)

	entity, err := c.inner.FindByToken(ctx, lookup)
	if err != nil {
		return nil, err
	}
	if err := c.conn.Client().Set(ctx, pointer, entity.ID, c.ttl).Err(); err != nil {
		c.logger.Warn(ctx, "Record cache write failed", logger.Err(err))
	}
	return entity, nil
}

// resolve loads id from the cache or, for a stale pointer, from the inner repository.
func (c *CachingAuthorizationRepository) resolve(ctx context.Context, id string) (*models.AuthorizationEntity, bool) {
	if entity, ok := c.getEntity(ctx, id); ok {
		return entity, true
	}
	entity, err := c.readThrough(ctx, id)
	if err != nil {
		return nil, false
	}
	return entity, true
}

// readThrough loads id from the inner repository and caches it unless a write
// to id happened in the meantime.
func (c *CachingAuthorizationRepository) readThrough(ctx context.Context, id string) (*models.AuthorizationEntity, error) {
	observed, fenced := c.generation(ctx, id)
	entity, err := c.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if fenced {
		c.putEntity(ctx, entity, observed)
	}
	return entity, nil
}

func matches(entity *models.AuthorizationEntity, lookup repository.TokenLookup) bool {
	switch lookup.Type {
	case constants.TokenTypeState:
		return entity.State != "" && entity.State == lookup.Value
	case constants.TokenTypeCode:
		return entity.AuthorizationCodeHash != "" && entity.AuthorizationCodeHash == lookup.Hash
	case constants.TokenTypeAccess:
		return entity.AccessTokenHash != "" && entity.AccessTokenHash == lookup.Hash
	case constants.TokenTypeRefresh:
		return entity.RefreshTokenHash != "" && entity.RefreshTokenHash == lookup.Hash
	}
	return false
}

func (c *CachingAuthorizationRepository) entityKey(id string) string {
	return c.conn.Key("authz", "id", id)
}

func (c *CachingAuthorizationRepository) generationKey(id string) string {
	return c.conn.Key("authz", "gen", id)
}

func (c *CachingAuthorizationRepository) pointerKey(lookup repository.TokenLookup) string {
	if lookup.Type == constants.TokenTypeState {
		return c.conn.Key("authz", "state", lookup.Value)
	}
	return c.conn.Key("authz", string(lookup.Type), lookup.Hash)
}

func (c *CachingAuthorizationRepository) getEntity(ctx context.Context, id string) (*models.AuthorizationEntity, bool) {
	raw, err := c.conn.Client().Get(ctx, c.entityKey(id)).Bytes()
	if err != nil {
		if !stderrors.Is(err, redis.Nil) {
			c.logger.Warn(ctx, "Record cache lookup failed", logger.Err(err))
		}
		return nil, false
	}
	var entity models.AuthorizationEntity
	if err := json.Unmarshal(raw, &entity); err != nil {
		c.logger.Warn(ctx, "Discarding undecodable cache entry", logger.String("authorization_id", id))
		return nil, false
	}
	return &entity, true
}

// generation returns the write generation of id, zero when none is recorded. It
// reports false when Redis cannot answer, in which case nothing may be cached.
func (c *CachingAuthorizationRepository) generation(ctx context.Context, id string) (int64, bool) {
	n, err := c.conn.Client().Get(ctx, c.generationKey(id)).Int64()
	if err != nil && !stderrors.Is(err, redis.Nil) {
		c.logger.Warn(ctx, "Record cache lookup failed", logger.Err(err))
		return 0, false
	}
	return n, true
}

// putEntity caches entity if its generation still equals observed.
func (c *CachingAuthorizationRepository) putEntity(ctx context.Context, entity *models.AuthorizationEntity, observed int64) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return
	}
	genKey := c.generationKey(entity.ID)
	err = c.conn.Client().Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !stderrors.Is(err, redis.Nil) {
			return err
		}
		if current != observed {
			return errStaleEntity
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, c.entityKey(entity.ID), raw, c.ttl)
		_, err = pipe.Exec(ctx)
		return err
	}, genKey)
	switch {
	case err == nil:
	case stderrors.Is(err, errStaleEntity), stderrors.Is(err, redis.TxFailedErr):
		c.logger.Debug(ctx, "Skipped caching a record written during the read", logger.String("authorization_id", entity.ID))
	default:
		c.logger.Warn(ctx, "Record cache write failed", logger.Err(err))
	}
}

// evict bumps the generation of every id and drops its cached entity in one
// transaction.
func (c *CachingAuthorizationRepository) evict(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	pipe := c.conn.Client().TxPipeline()
	for _, id := range ids {
		genKey := c.generationKey(id)
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, c.ttl+generationGrace)
		pipe.Del(ctx, c.entityKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn(ctx, "Record cache eviction failed", logger.Err(err), logger.Int("count", len(ids)))
	}
}
