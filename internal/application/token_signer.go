package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/repository"
	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

// Claim names set by the signer. Extra claims of a TokenRequest never override them.
const (
	ClaimClientID = "client_id"
	ClaimTenantID = "tenant_id"
	ClaimScope    = "scope"
)

var reservedClaims = map[string]struct{}{
	ClaimClientID: {}, ClaimTenantID: {}, ClaimScope: {},
	"sub": {}, "iss": {}, "aud": {}, "iat": {}, "exp": {}, "jti": {},
}

var supportedAlgorithms = []string{"ES256", "ES384", "ES512", "RS256"}

// TokenRequest describes a token to be issued.
type TokenRequest struct {
	ClientID    string
	Subject     string
	Scopes      []string
	TTL         time.Duration
	ExtraClaims map[string]interface{}
}

// SignedToken is a compact JWS and the facts a caller needs to persist it.
type SignedToken struct {
	Value     string
	KeyID     string
	Algorithm string
	IssuedAt  time.Time
	ExpiresAt time.Time
	JTI       string
}

// KeyMatcher selects JWKs. Empty fields match anything.
type KeyMatcher struct {
	KeyID     string
	Algorithm string
	Use       string
}

// Matches reports whether jwk satisfies every set field of m.
func (m KeyMatcher) Matches(jwk jose.JSONWebKey) bool {
	if m.KeyID != "" && m.KeyID != jwk.KeyID {
		return false
	}
	if m.Algorithm != "" && m.Algorithm != jwk.Algorithm {
		return false
	}
	if m.Use != "" && m.Use != jwk.Use {
		return false
	}
	return true
}

// KeyRefresher runs a rotation pass on demand. ran is false when another node holds
// the rotation lock.
type KeyRefresher interface {
	RotateNow(ctx context.Context) (ran bool, err error)
}

// TokenSigner issues JWTs with the freshest active signing key and answers key
// discovery queries over the verification set (active and deprecated keys).
// TokenSigner 使用最新的活跃签名密钥签发 JWT，并基于验证集合（活跃与弃用密钥）提供密钥发现。
type TokenSigner struct {
	keys        repository.SigningKeyRepository
	generator   service.KeyGenerator
	cipher      service.TokenCipher
	metrics     service.Metrics
	rotation    time.Duration
	deprecation time.Duration
	defaultTTL  time.Duration
	// privateKeys caches materialised private JWKs by kid.
	privateKeys *gocache.Cache
	refresher   KeyRefresher
	refreshes   singleflight.Group
	now         func() time.Time
	logger      logger.Logger
}

// NewTokenSigner creates a signer. A nil now defaults to time.Now.
func NewTokenSigner(
	keys repository.SigningKeyRepository,
	generator service.KeyGenerator,
	cipher service.TokenCipher,
	metrics service.Metrics,
	rotation, deprecation, defaultTTL time.Duration,
	now func() time.Time,
	log logger.Logger,
) *TokenSigner {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	if now == nil {
		now = time.Now
	}
	if defaultTTL <= 0 {
		defaultTTL = constants.DefaultAccessTokenTTL
	}
	return &TokenSigner{
		keys:        keys,
		generator:   generator,
		cipher:      cipher,
		metrics:     metrics,
		rotation:    rotation,
		deprecation: deprecation,
		defaultTTL:  defaultTTL,
		privateKeys: gocache.New(rotation, rotation),
		now:         now,
		logger:      log.WithComponent("token_signer"),
	}
}

// WithKeyRefresher lets Sign rotate on demand when the newest key aged out before
// the next scheduled tick.
func (s *TokenSigner) WithKeyRefresher(r KeyRefresher) *TokenSigner {
	s.refresher = r
	return s
}

// Sign issues a token for req with the newest key younger than the rotation period.
func (s *TokenSigner) Sign(ctx context.Context, rc models.RequestContext, req TokenRequest) (token *SignedToken, err error) {
	ctx, span := tracer.Start(ctx, "TokenSigner.Sign")
	keyType := string(s.generator.Type())
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(errors.CodeOf(err)))
			if !errors.IsValidation(err) {
				s.logger.Error(ctx, "Token signing failed", err, logger.String("client_id", req.ClientID))
			}
		}
		span.End()
		s.metrics.RecordTokenSigned(keyType, err == nil)
	}()

	if req.ClientID == "" {
		return nil, errors.ErrValidation("client id is required")
	}
	if rc.Host == "" {
		return nil, errors.ErrValidation("request host is required")
	}

	now := s.now().UTC()
	key, err := s.activeKey(ctx, now)
	if errors.IsNoSigningKey(err) && s.refresher != nil {
		key, err = s.refreshActiveKey(ctx)
	}
	if err != nil {
		return nil, err
	}
	jwk, err := s.privateJWK(key)
	if err != nil {
		return nil, err
	}

	method := jwt.GetSigningMethod(jwk.Algorithm)
	if method == nil {
		return nil, errors.ErrCryptoFailure(fmt.Sprintf("unsupported signing algorithm %q", jwk.Algorithm))
	}

	claims := s.customizeAt(rc, req, now)
	t := jwt.NewWithClaims(method, claims)
	t.Header["kid"] = key.ID

	value, err := t.SignedString(jwk.Key)
	if err != nil {
		return nil, errors.ErrCryptoFailure("failed to sign token").WithCause(err).WithMetadata("kid", key.ID)
	}

	span.SetAttributes(attribute.String("kid", key.ID), attribute.String("alg", jwk.Algorithm))
	return &SignedToken{
		Value:     value,
		KeyID:     key.ID,
		Algorithm: jwk.Algorithm,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl(req)),
		JTI:       claims["jti"].(string),
	}, nil
}

// Customize returns the claims Sign would put into a token for req.
func (s *TokenSigner) Customize(rc models.RequestContext, req TokenRequest) jwt.MapClaims {
	return s.customizeAt(rc, req, s.now().UTC())
}

func (s *TokenSigner) customizeAt(rc models.RequestContext, req TokenRequest, now time.Time) jwt.MapClaims {
	claims := jwt.MapClaims{}
	for k, v := range req.ExtraClaims {
		if _, reserved := reservedClaims[k]; !reserved {
			claims[k] = v
		}
	}

	subject := req.Subject
	if subject == "" {
		subject = rc.PrincipalID
	}
	claims[ClaimClientID] = req.ClientID
	claims["sub"] = subject
	claims["iss"] = rc.Issuer()
	claims[ClaimTenantID] = rc.TenantID
	claims["aud"] = rc.Host
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(s.ttl(req)).Unix()
	claims["jti"] = uuid.New().String()
	if len(req.Scopes) > 0 {
		claims[ClaimScope] = strings.Join(req.Scopes, " ")
	}
	return claims
}

// SelectKeys returns the public JWKs of the verification set that match m, newest
// first.
func (s *TokenSigner) SelectKeys(ctx context.Context, m KeyMatcher) ([]jose.JSONWebKey, error) {
	now := s.now().UTC()
	candidates, err := s.keys.FindCreatedSince(ctx, s.generator.Type(), now.Add(-(s.rotation + s.deprecation)))
	if err != nil {
		return nil, err
	}

	selected := make([]jose.JSONWebKey, 0, len(candidates))
	for _, key := range candidates {
		if key.State(now, s.rotation, s.deprecation) == models.KeyStateInvalidated {
			continue
		}
		jwk, err := s.generator.BuildKey(key.ID, key.PublicKey, "")
		if err != nil {
			s.logger.Warn(ctx, "Skipping unreadable signing key", logger.String("kid", key.ID), logger.Err(err))
			continue
		}
		if m.Matches(jwk) {
			selected = append(selected, jwk)
		}
	}
	return selected, nil
}

// PublicKeySet returns the verification set as a JWKS document.
func (s *TokenSigner) PublicKeySet(ctx context.Context) (jose.JSONWebKeySet, error) {
	keys, err := s.SelectKeys(ctx, KeyMatcher{Use: "sig"})
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	return jose.JSONWebKeySet{Keys: keys}, nil
}

// Verify checks the signature and time claims of token against the verification set.
func (s *TokenSigner) Verify(ctx context.Context, token string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.ErrValidation("token has no kid header")
		}
		keys, err := s.SelectKeys(ctx, KeyMatcher{KeyID: kid})
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			return nil, errors.ErrNotFound(fmt.Sprintf("signing key %s is not in the verification set", kid))
		}
		return keys[0].Key, nil
	},
		jwt.WithValidMethods(supportedAlgorithms),
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, errors.ErrValidation("invalid token").WithCause(err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.ErrValidation("unexpected claims type")
	}
	return claims, nil
}

// activeKey returns the newest key still inside its rotation period.
func (s *TokenSigner) activeKey(ctx context.Context, now time.Time) (*models.SigningKeyPair, error) {
	keys, err := s.keys.FindCreatedSince(ctx, s.generator.Type(), now.Add(-s.rotation))
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if key.State(now, s.rotation, s.deprecation) == models.KeyStateActive {
			return key, nil
		}
	}
	return nil, errors.ErrNoSigningKey("no active signing key")
}

// refreshActiveKey runs one rotation pass, shared by concurrent callers on this node,
// and looks the active key up again.
func (s *TokenSigner) refreshActiveKey(ctx context.Context) (*models.SigningKeyPair, error) {
	_, err, _ := s.refreshes.Do("rotate", func() (interface{}, error) {
		ran, err := s.refresher.RotateNow(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if !ran {
			s.logger.Debug(ctx, "Rotation lock held elsewhere, retrying key lookup")
		}
		return nil, nil
	})
	if err != nil {
		return nil, errors.ErrNoSigningKey("on-demand rotation failed").WithCause(err)
	}
	return s.activeKey(ctx, s.now().UTC())
}

func (s *TokenSigner) privateJWK(key *models.SigningKeyPair) (jose.JSONWebKey, error) {
	if cached, ok := s.privateKeys.Get(key.ID); ok {
		return cached.(jose.JSONWebKey), nil
	}
	privatePEM, err := s.cipher.Decrypt(key.PrivateKey)
	if err != nil {
		return jose.JSONWebKey{}, errors.ErrCryptoFailure("failed to decrypt signing key").WithCause(err).WithMetadata("kid", key.ID)
	}
	jwk, err := s.generator.BuildKey(key.ID, key.PublicKey, privatePEM)
	if err != nil {
		return jose.JSONWebKey{}, err
	}
	s.privateKeys.SetDefault(key.ID, jwk)
	return jwk, nil
}

func (s *TokenSigner) ttl(req TokenRequest) time.Duration {
	if req.TTL > 0 {
		return req.TTL
	}
	return s.defaultTTL
}
