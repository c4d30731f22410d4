package application

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/internal/infrastructure/crypto"
	"github.com/turtacn/authstore/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

func signerRequestContext() models.RequestContext {
	return models.RequestContext{TenantID: "tenant-1", Host: "auth.tenant-1.example", PrincipalID: "alice"}
}

func TestTokenSigner_NoSigningKey(t *testing.T) {
	f := newKeyFixture(t)

	_, err := f.signer.Sign(context.Background(), signerRequestContext(), TokenRequest{ClientID: "client-a"})
	assert.True(t, errors.IsNoSigningKey(err))
}

func TestTokenSigner_NoSigningKeyOnceEveryKeyAged(t *testing.T) {
	f := newKeyFixture(t)
	_, err := f.rotator.Rotate(context.Background())
	require.NoError(t, err)

	f.clock.Set(t0.Add(testRotation))
	_, err = f.signer.Sign(context.Background(), signerRequestContext(), TokenRequest{ClientID: "client-a"})
	assert.True(t, errors.IsNoSigningKey(err))
}

// failingRefresher reports a rotation error on every call.
type failingRefresher struct{ calls int }

func (r *failingRefresher) RotateNow(context.Context) (bool, error) {
	r.calls++
	return true, errors.ErrUnavailable("database")
}

func TestTokenSigner_RotatesOnDemandBetweenTicks(t *testing.T) {
	f := newKeyFixture(t)
	ctx := context.Background()
	locks := postgres.NewLockRepository(f.conn, "node-a", f.clock.Now, logger.NewNoopLogger())
	hold := service.LockHold{Min: time.Minute, Max: 5 * time.Minute}
	scheduler := NewRotationScheduler(f.rotator, nil, locks, hold, 30*time.Minute, nil, logger.NewNoopLogger())
	f.signer.WithKeyRefresher(scheduler)

	ran, err := scheduler.Tick(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	// Ticks run 10 minutes out of phase with the key creation time.
	nextTick := t0.Add(10 * time.Minute)
	var failures []time.Duration
	for at := t0; !at.After(t0.Add(2 * testRotation)); at = at.Add(5 * time.Minute) {
		f.clock.Set(at)
		if !at.Before(nextTick) {
			_, err := scheduler.Tick(ctx)
			require.NoError(t, err)
			nextTick = nextTick.Add(30 * time.Minute)
		}
		if _, err := f.signer.Sign(ctx, signerRequestContext(), TokenRequest{ClientID: "client-a"}); err != nil {
			failures = append(failures, at.Sub(t0))
		}
	}
	assert.Empty(t, failures)

	keys, err := f.keys.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestTokenSigner_OnDemandRotationFailure(t *testing.T) {
	f := newKeyFixture(t)
	refresher := &failingRefresher{}
	f.signer.WithKeyRefresher(refresher)

	_, err := f.signer.Sign(context.Background(), signerRequestContext(), TokenRequest{ClientID: "client-a"})
	assert.True(t, errors.IsNoSigningKey(err))
	assert.Equal(t, 1, refresher.calls)
}

func TestTokenSigner_SignAndVerify(t *testing.T) {
	f := newKeyFixture(t)
	ctx := context.Background()
	rotated, err := f.rotator.Rotate(ctx)
	require.NoError(t, err)

	token, err := f.signer.Sign(ctx, signerRequestContext(), TokenRequest{
		ClientID:    "client-a",
		Scopes:      []string{"openid", "email"},
		TTL:         10 * time.Minute,
		ExtraClaims: map[string]interface{}{"nonce": "n-1", "iss": "https://evil.example"},
	})
	require.NoError(t, err)
	assert.Equal(t, rotated.GeneratedKeyID, token.KeyID)
	assert.Equal(t, "ES256", token.Algorithm)
	assert.True(t, token.ExpiresAt.Equal(t0.Add(10*time.Minute)))

	unverified, _, err := jwt.NewParser().ParseUnverified(token.Value, jwt.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, token.KeyID, unverified.Header["kid"])
	assert.Equal(t, "ES256", unverified.Header["alg"])

	claims, err := f.signer.Verify(ctx, token.Value)
	require.NoError(t, err)
	assert.Equal(t, "client-a", claims[ClaimClientID])
	assert.Equal(t, "alice", claims["sub"])
	assert.Equal(t, "https://auth.tenant-1.example", claims["iss"])
	assert.Equal(t, "auth.tenant-1.example", claims["aud"])
	assert.Equal(t, "tenant-1", claims[ClaimTenantID])
	assert.Equal(t, "openid email", claims[ClaimScope])
	assert.Equal(t, "n-1", claims["nonce"])
	assert.Equal(t, token.JTI, claims["jti"])
}

func TestTokenSigner_PrefersFreshestKey(t *testing.T) {
	f := newKeyFixture(t)
	ctx := context.Background()

	_, err := f.rotator.Rotate(ctx)
	require.NoError(t, err)
	f.clock.Set(t0.Add(testRotation))
	second, err := f.rotator.Rotate(ctx)
	require.NoError(t, err)

	f.clock.Set(t0.Add(testRotation + time.Minute))
	token, err := f.signer.Sign(ctx, signerRequestContext(), TokenRequest{ClientID: "client-a"})
	require.NoError(t, err)
	assert.Equal(t, second.GeneratedKeyID, token.KeyID)
}

func TestTokenSigner_DeprecatedKeysStillVerify(t *testing.T) {
	f := newKeyFixture(t)
	ctx := context.Background()

	first, err := f.rotator.Rotate(ctx)
	require.NoError(t, err)
	token, err := f.signer.Sign(ctx, signerRequestContext(), TokenRequest{ClientID: "client-a", TTL: 10 * testRotation})
	require.NoError(t, err)

	f.clock.Set(t0.Add(testRotation + time.Minute))
	second, err := f.rotator.Rotate(ctx)
	require.NoError(t, err)

	set, err := f.signer.PublicKeySet(ctx)
	require.NoError(t, err)
	require.Len(t, set.Keys, 2)
	assert.Equal(t, second.GeneratedKeyID, set.Keys[0].KeyID)
	assert.Equal(t, first.GeneratedKeyID, set.Keys[1].KeyID)
	for _, k := range set.Keys {
		assert.True(t, k.IsPublic())
		assert.Equal(t, "sig", k.Use)
	}

	_, err = f.signer.Verify(ctx, token.Value)
	assert.NoError(t, err)

	// Past rotation plus deprecation the first key leaves the verification set.
	f.clock.Set(t0.Add(testRotation + testDeprecation + time.Second))
	_, err = f.rotator.Rotate(ctx)
	require.NoError(t, err)

	keys, err := f.signer.SelectKeys(ctx, KeyMatcher{KeyID: first.GeneratedKeyID})
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = f.signer.Verify(ctx, token.Value)
	assert.True(t, errors.IsValidation(err))
}

func TestTokenSigner_RSA(t *testing.T) {
	conn := newTestConn(t)
	generator, err := crypto.NewRSAKeyGenerator(2048)
	require.NoError(t, err)
	cipher := newTestCipher(t, testSecret)
	clock := newFakeClock(t0)
	repo := postgres.NewSigningKeyRepository(conn, logger.NewNoopLogger())
	rotator := NewKeyRotationService(repo, generator, cipher, nil, nil, testRotation, testDeprecation, clock.Now, logger.NewNoopLogger())
	signer := NewTokenSigner(repo, generator, cipher, nil, testRotation, testDeprecation, time.Hour, clock.Now, logger.NewNoopLogger())

	_, err = rotator.Rotate(context.Background())
	require.NoError(t, err)

	token, err := signer.Sign(context.Background(), signerRequestContext(), TokenRequest{ClientID: "client-a"})
	require.NoError(t, err)
	assert.Equal(t, "RS256", token.Algorithm)

	_, err = signer.Verify(context.Background(), token.Value)
	assert.NoError(t, err)
}

func TestTokenSigner_CustomizeDefaultsSubjectToPrincipal(t *testing.T) {
	f := newKeyFixture(t)

	claims := f.signer.Customize(signerRequestContext(), TokenRequest{ClientID: "client-a"})
	assert.Equal(t, "alice", claims["sub"])
	assert.Equal(t, t0.Unix(), claims["iat"])
	assert.Equal(t, t0.Add(time.Hour).Unix(), claims["exp"])
	assert.NotContains(t, claims, ClaimScope)
}

func TestTokenSigner_Validation(t *testing.T) {
	f := newKeyFixture(t)

	_, err := f.signer.Sign(context.Background(), signerRequestContext(), TokenRequest{})
	assert.True(t, errors.IsValidation(err))

	_, err = f.signer.Sign(context.Background(), models.RequestContext{}, TokenRequest{ClientID: "client-a"})
	assert.True(t, errors.IsValidation(err))
}

func TestKeyMatcher_Matches(t *testing.T) {
	f := newKeyFixture(t)
	_, err := f.rotator.Rotate(context.Background())
	require.NoError(t, err)
	keys, err := f.signer.SelectKeys(context.Background(), KeyMatcher{})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	jwk := keys[0]

	tests := []struct {
		name    string
		matcher KeyMatcher
		want    bool
	}{
		{"empty matches all", KeyMatcher{}, true},
		{"kid", KeyMatcher{KeyID: jwk.KeyID}, true},
		{"other kid", KeyMatcher{KeyID: "nope"}, false},
		{"alg", KeyMatcher{Algorithm: "ES256"}, true},
		{"other alg", KeyMatcher{Algorithm: "RS256"}, false},
		{"use", KeyMatcher{Use: "sig", Algorithm: "ES256"}, true},
		{"enc use", KeyMatcher{Use: "enc"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.matcher.Matches(jwk))
		})
	}
}
