package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/repository"
	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

type mockAuthorizationRepository struct {
	mock.Mock
}

func (m *mockAuthorizationRepository) Save(ctx context.Context, entity *models.AuthorizationEntity) (*models.AuthorizationEntity, error) {
	args := m.Called(ctx, entity)
	if e := args.Get(0); e != nil {
		return e.(*models.AuthorizationEntity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthorizationRepository) DeleteByNaturalKey(ctx context.Context, key models.NaturalKey) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockAuthorizationRepository) FindByID(ctx context.Context, id string) (*models.AuthorizationEntity, error) {
	args := m.Called(ctx, id)
	if e := args.Get(0); e != nil {
		return e.(*models.AuthorizationEntity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthorizationRepository) FindByToken(ctx context.Context, lookup repository.TokenLookup) (*models.AuthorizationEntity, error) {
	args := m.Called(ctx, lookup)
	if e := args.Get(0); e != nil {
		return e.(*models.AuthorizationEntity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthorizationRepository) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	args := m.Called(ctx, cutoff, limit)
	return args.Get(0).([]string), args.Error(1)
}

func TestCachingAuthorizationRepository_FindByIDReadsThrough(t *testing.T) {
	conn, _ := newTestConnection(t)
	ctx := context.Background()
	inner := new(mockAuthorizationRepository)
	entity := &models.AuthorizationEntity{ID: "a1", RegisteredClientID: "c", PrincipalName: "p", GrantType: "g"}
	inner.On("FindByID", ctx, "a1").Return(entity, nil).Once()

	repo := NewCachingAuthorizationRepository(inner, conn, time.Minute, service.NoopMetrics{}, logger.NewNoopLogger())

	first, err := repo.FindByID(ctx, "a1")
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, "a1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	inner.AssertExpectations(t)
}

func TestCachingAuthorizationRepository_SaveEvictsStalePointer(t *testing.T) {
	conn, _ := newTestConnection(t)
	ctx := context.Background()
	inner := new(mockAuthorizationRepository)
	repo := NewCachingAuthorizationRepository(inner, conn, time.Minute, nil, logger.NewNoopLogger())

	lookup := repository.TokenLookup{Type: constants.TokenTypeAccess, Hash: "h1"}
	v1 := &models.AuthorizationEntity{ID: "a1", AccessTokenHash: "h1"}
	inner.On("FindByToken", ctx, lookup).Return(v1, nil).Once()

	got, err := repo.FindByToken(ctx, lookup)
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)

	// The pointer is cached; the entity is read once by ID and then served.
	inner.On("FindByID", ctx, "a1").Return(v1, nil).Once()
	for i := 0; i < 2; i++ {
		got, err = repo.FindByToken(ctx, lookup)
		require.NoError(t, err)
		assert.Equal(t, "a1", got.ID)
	}

	// The access token is replaced; the old hash must stop resolving.
	v2 := &models.AuthorizationEntity{ID: "a1", AccessTokenHash: "h2"}
	inner.On("Save", ctx, v2).Return(v2, nil).Once()
	_, err = repo.Save(ctx, v2)
	require.NoError(t, err)

	inner.On("FindByID", ctx, "a1").Return(v2, nil).Once()
	inner.On("FindByToken", ctx, lookup).Return(nil, errors.ErrNotFound("no record")).Once()

	_, err = repo.FindByToken(ctx, lookup)
	assert.True(t, errors.IsNotFound(err))
	inner.AssertExpectations(t)
}

func TestCachingAuthorizationRepository_UnspecifiedBypassesCache(t *testing.T) {
	conn, mr := newTestConnection(t)
	ctx := context.Background()
	inner := new(mockAuthorizationRepository)
	repo := NewCachingAuthorizationRepository(inner, conn, time.Minute, nil, logger.NewNoopLogger())

	lookup := repository.TokenLookup{Value: "v", Hash: "h"}
	inner.On("FindByToken", ctx, lookup).Return(&models.AuthorizationEntity{ID: "a1"}, nil).Twice()

	for i := 0; i < 2; i++ {
		_, err := repo.FindByToken(ctx, lookup)
		require.NoError(t, err)
	}
	assert.Empty(t, mr.Keys())
	inner.AssertExpectations(t)
}

func TestCachingAuthorizationRepository_DeletesEvict(t *testing.T) {
	conn, mr := newTestConnection(t)
	ctx := context.Background()
	inner := new(mockAuthorizationRepository)
	repo := NewCachingAuthorizationRepository(inner, conn, time.Minute, nil, logger.NewNoopLogger())

	require.NoError(t, mr.Set("test:authz:id:a1", "{}"))
	require.NoError(t, mr.Set("test:authz:id:a2", "{}"))

	key := models.NaturalKey{RegisteredClientID: "c", PrincipalName: "p", GrantType: "g"}
	inner.On("DeleteByNaturalKey", ctx, key).Return("a1", nil).Once()
	id, err := repo.DeleteByNaturalKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "a1", id)
	assert.False(t, mr.Exists("test:authz:id:a1"))

	cutoff := time.Now()
	inner.On("DeleteExpired", ctx, cutoff, 10).Return([]string{"a2"}, nil).Once()
	ids, err := repo.DeleteExpired(ctx, cutoff, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, ids)
	assert.False(t, mr.Exists("test:authz:id:a2"))
}

func TestCachingAuthorizationRepository_RedisDownFallsThrough(t *testing.T) {
	conn, mr := newTestConnection(t)
	ctx := context.Background()
	inner := new(mockAuthorizationRepository)
	metrics := new(mockMetrics)
	metrics.On("RecordCacheAccess", recordCacheType, false).Once()
	repo := NewCachingAuthorizationRepository(inner, conn, time.Minute, metrics, logger.NewNoopLogger())

	mr.Close()
	inner.On("FindByID", ctx, "a1").Return(&models.AuthorizationEntity{ID: "a1"}, nil).Once()

	got, err := repo.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)
	metrics.AssertExpectations(t)
}

// interleavedRepository runs onRead once, after the inner read completed and
// before its result is returned, standing in for a concurrent writer.
type interleavedRepository struct {
	mockAuthorizationRepository
	onRead func()
}

func (r *interleavedRepository) FindByID(ctx context.Context, id string) (*models.AuthorizationEntity, error) {
	entity, err := r.mockAuthorizationRepository.FindByID(ctx, id)
	r.interleave()
	return entity, err
}

func (r *interleavedRepository) FindByToken(ctx context.Context, lookup repository.TokenLookup) (*models.AuthorizationEntity, error) {
	entity, err := r.mockAuthorizationRepository.FindByToken(ctx, lookup)
	r.interleave()
	return entity, err
}

func (r *interleavedRepository) interleave() {
	if hook := r.onRead; hook != nil {
		r.onRead = nil
		hook()
	}
}

func TestCachingAuthorizationRepository_DeleteDuringReadIsNotCached(t *testing.T) {
	conn, mr := newTestConnection(t)
	ctx := context.Background()
	inner := new(interleavedRepository)
	repo := NewCachingAuthorizationRepository(inner, conn, time.Minute, nil, logger.NewNoopLogger())

	key := models.NaturalKey{RegisteredClientID: "c", PrincipalName: "p", GrantType: "g"}
	revoked := &models.AuthorizationEntity{ID: "a1", RegisteredClientID: "c", PrincipalName: "p", GrantType: "g", AccessTokenHash: "h1"}
	inner.On("FindByID", ctx, "a1").Return(revoked, nil).Once()
	inner.On("DeleteByNaturalKey", ctx, key).Return("a1", nil).Once()
	inner.onRead = func() {
		_, err := repo.DeleteByNaturalKey(ctx, key)
		require.NoError(t, err)
	}

	_, err := repo.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:authz:id:a1"))

	inner.On("FindByID", ctx, "a1").Return(nil, errors.ErrNotFound("no record")).Once()
	_, err = repo.FindByID(ctx, "a1")
	assert.True(t, errors.IsNotFound(err))

	// A pointer left behind by a token read that raced the delete resolves to nothing.
	lookup := repository.TokenLookup{Type: constants.TokenTypeAccess, Hash: "h1"}
	require.NoError(t, mr.Set("test:authz:access_token:h1", "a1"))
	inner.On("FindByID", ctx, "a1").Return(nil, errors.ErrNotFound("no record")).Once()
	inner.On("FindByToken", ctx, lookup).Return(nil, errors.ErrNotFound("no record")).Once()
	_, err = repo.FindByToken(ctx, lookup)
	assert.True(t, errors.IsNotFound(err))
	inner.AssertExpectations(t)
}

func TestCachingAuthorizationRepository_SaveDuringReadIsNotCached(t *testing.T) {
	conn, mr := newTestConnection(t)
	ctx := context.Background()
	inner := new(interleavedRepository)
	repo := NewCachingAuthorizationRepository(inner, conn, time.Minute, nil, logger.NewNoopLogger())

	lookup := repository.TokenLookup{Type: constants.TokenTypeAccess, Hash: "h1"}
	v1 := &models.AuthorizationEntity{ID: "a1", AccessTokenHash: "h1"}
	v2 := &models.AuthorizationEntity{ID: "a1", AccessTokenHash: "h2"}
	inner.On("FindByToken", ctx, lookup).Return(v1, nil).Once()
	inner.On("Save", ctx, v2).Return(v2, nil).Once()
	inner.onRead = func() {
		_, err := repo.Save(ctx, v2)
		require.NoError(t, err)
	}

	got, err := repo.FindByToken(ctx, lookup)
	require.NoError(t, err)
	assert.Equal(t, "h1", got.AccessTokenHash)
	assert.False(t, mr.Exists("test:authz:id:a1"))

	// The replaced hash no longer matches the stored entity.
	inner.On("FindByID", ctx, "a1").Return(v2, nil).Once()
	inner.On("FindByToken", ctx, lookup).Return(nil, errors.ErrNotFound("no record")).Once()
	_, err = repo.FindByToken(ctx, lookup)
	assert.True(t, errors.IsNotFound(err))
	inner.AssertExpectations(t)
}

func TestCachingAuthorizationRepository_StaleGenerationSkipsWrite(t *testing.T) {
	conn, mr := newTestConnection(t)
	ctx := context.Background()
	repo := NewCachingAuthorizationRepository(new(mockAuthorizationRepository), conn, time.Minute, nil, logger.NewNoopLogger())

	observed, ok := repo.generation(ctx, "a1")
	require.True(t, ok)
	assert.Equal(t, int64(0), observed)

	repo.evict(ctx, "a1")
	repo.putEntity(ctx, &models.AuthorizationEntity{ID: "a1"}, observed)
	assert.False(t, mr.Exists("test:authz:id:a1"))

	current, ok := repo.generation(ctx, "a1")
	require.True(t, ok)
	assert.Equal(t, int64(1), current)
	repo.putEntity(ctx, &models.AuthorizationEntity{ID: "a1"}, current)
	assert.True(t, mr.Exists("test:authz:id:a1"))
}

type mockMetrics struct {
	service.NoopMetrics
	mock.Mock
}

func (m *mockMetrics) RecordCacheAccess(cacheType string, hit bool) {
	m.Called(cacheType, hit)
}
