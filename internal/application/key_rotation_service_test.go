package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/service/mocks"
	"github.com/turtacn/authstore/internal/infrastructure/crypto"
	"github.com/turtacn/authstore/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/logger"
)

const (
	testRotation    = 4 * time.Hour
	testDeprecation = time.Hour
)

var t0 = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

type keyFixture struct {
	conn    *postgres.DBConnection
	keys    *postgres.SigningKeyRepository
	clock   *fakeClock
	events  *mocks.MockEventPublisher
	rotator *KeyRotationService
	signer  *TokenSigner
}

func newKeyFixture(t *testing.T) *keyFixture {
	t.Helper()
	conn := newTestConn(t)
	generator, err := crypto.NewECKeyGenerator("P-256")
	require.NoError(t, err)
	cipher := newTestCipher(t, testSecret)

	f := &keyFixture{
		conn:   conn,
		keys:   postgres.NewSigningKeyRepository(conn, logger.NewNoopLogger()),
		clock:  newFakeClock(t0),
		events: new(mocks.MockEventPublisher),
	}
	f.events.On("Publish", mock.Anything, mock.Anything).Return(nil)
	f.rotator = NewKeyRotationService(f.keys, generator, cipher, f.events, nil,
		testRotation, testDeprecation, f.clock.Now, logger.NewNoopLogger())
	f.signer = NewTokenSigner(f.keys, generator, cipher, nil,
		testRotation, testDeprecation, time.Hour, f.clock.Now, logger.NewNoopLogger())
	return f
}

func TestKeyRotationService_GeneratesFirstKey(t *testing.T) {
	f := newKeyFixture(t)
	ctx := context.Background()

	result, err := f.rotator.Rotate(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, result.GeneratedKeyID)
	assert.Empty(t, result.InvalidatedKeyIDs)

	key, err := f.keys.FindByID(ctx, result.GeneratedKeyID)
	require.NoError(t, err)
	assert.Equal(t, models.KeyTypeEC, key.KeyType)
	assert.True(t, key.CreatedAt.Equal(t0))
	assert.NotContains(t, key.PrivateKey, "PRIVATE KEY", "private keys are encrypted at rest")

	f.events.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(e models.LifecycleEvent) bool {
		return e.Type == constants.EventKeyGenerated && e.KeyID == result.GeneratedKeyID
	}))
}

func TestKeyRotationService_RotationBoundary(t *testing.T) {
	f := newKeyFixture(t)
	ctx := context.Background()

	first, err := f.rotator.Rotate(ctx)
	require.NoError(t, err)

	f.clock.Set(t0.Add(testRotation - time.Second))
	result, err := f.rotator.Rotate(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.GeneratedKeyID, "a key younger than the rotation period is kept")

	f.clock.Set(t0.Add(testRotation + time.Second))
	result, err = f.rotator.Rotate(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, result.GeneratedKeyID)
	assert.NotEqual(t, first.GeneratedKeyID, result.GeneratedKeyID)

	latest, err := f.keys.FindLatest(ctx, models.KeyTypeEC)
	require.NoError(t, err)
	assert.Equal(t, result.GeneratedKeyID, latest.ID)
}

func TestKeyRotationService_RotatesAtExactPeriod(t *testing.T) {
	f := newKeyFixture(t)
	ctx := context.Background()

	_, err := f.rotator.Rotate(ctx)
	require.NoError(t, err)

	f.clock.Set(t0.Add(testRotation))
	result, err := f.rotator.Rotate(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, result.GeneratedKeyID)
}

func TestKeyRotationService_InvalidationBoundary(t *testing.T) {
	f := newKeyFixture(t)
	ctx := context.Background()

	first, err := f.rotator.Rotate(ctx)
	require.NoError(t, err)

	f.clock.Set(t0.Add(testRotation + time.Minute))
	_, err = f.rotator.Rotate(ctx)
	require.NoError(t, err)

	f.clock.Set(t0.Add(testRotation + testDeprecation))
	result, err := f.rotator.Rotate(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.InvalidatedKeyIDs, "a key exactly at the cutoff is not older than it")

	f.clock.Set(t0.Add(testRotation + testDeprecation + time.Second))
	result, err = f.rotator.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{first.GeneratedKeyID}, result.InvalidatedKeyIDs)

	key, err := f.keys.FindByID(ctx, first.GeneratedKeyID)
	require.NoError(t, err)
	assert.True(t, key.Invalidated())

	// Idempotent at the same instant.
	result, err = f.rotator.Rotate(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.GeneratedKeyID)
	assert.Empty(t, result.InvalidatedKeyIDs)
}
