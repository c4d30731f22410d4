package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/repository"
	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

// RotationResult reports what a rotation pass changed.
type RotationResult struct {
	GeneratedKeyID    string
	InvalidatedKeyIDs []string
}

// KeyRotationService maintains the signing key lifecycle. A key is active for the
// rotation period, then deprecated for the deprecation period, then invalidated.
// KeyRotationService 维护签名密钥的生命周期：密钥在轮换周期内处于活跃状态，
// 之后在弃用周期内仅用于验证，最终被作废。
type KeyRotationService struct {
	keys        repository.SigningKeyRepository
	generator   service.KeyGenerator
	cipher      service.TokenCipher
	events      service.EventPublisher
	metrics     service.Metrics
	rotation    time.Duration
	deprecation time.Duration
	now         func() time.Time
	logger      logger.Logger
}

// NewKeyRotationService creates the rotation service. A nil now defaults to time.Now.
func NewKeyRotationService(
	keys repository.SigningKeyRepository,
	generator service.KeyGenerator,
	cipher service.TokenCipher,
	events service.EventPublisher,
	metrics service.Metrics,
	rotation, deprecation time.Duration,
	now func() time.Time,
	log logger.Logger,
) *KeyRotationService {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	if now == nil {
		now = time.Now
	}
	return &KeyRotationService{
		keys:        keys,
		generator:   generator,
		cipher:      cipher,
		events:      events,
		metrics:     metrics,
		rotation:    rotation,
		deprecation: deprecation,
		now:         now,
		logger:      log.WithComponent("key_rotation"),
	}
}

// Periods returns the rotation and deprecation periods.
func (s *KeyRotationService) Periods() (rotation, deprecation time.Duration) {
	return s.rotation, s.deprecation
}

// Rotate generates a new key when none exists or the newest one reached the rotation
// period, then invalidates every key older than rotation plus deprecation. Running it
// repeatedly at the same instant changes nothing after the first pass.
func (s *KeyRotationService) Rotate(ctx context.Context) (result *RotationResult, err error) {
	ctx, span := tracer.Start(ctx, "KeyRotationService.Rotate")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(errors.CodeOf(err)))
			s.metrics.RecordRotation("failed", 0, 0)
		} else {
			generated := 0
			if result.GeneratedKeyID != "" {
				generated = 1
			}
			s.metrics.RecordRotation("rotated", generated, len(result.InvalidatedKeyIDs))
		}
		span.End()
	}()

	now := s.now().UTC()
	result = &RotationResult{}
	keyType := s.generator.Type()

	latest, err := s.keys.FindLatest(ctx, keyType)
	if err != nil && !errors.IsNotFound(err) {
		return nil, err
	}
	if latest == nil || latest.Age(now) >= s.rotation {
		key, err := s.generate(ctx, keyType, now)
		if err != nil {
			return nil, err
		}
		result.GeneratedKeyID = key.ID
	}

	cutoff := now.Add(-(s.rotation + s.deprecation))
	invalidated, err := s.keys.InvalidateCreatedBefore(ctx, cutoff, now)
	if err != nil {
		s.logger.Error(ctx, "Failed to invalidate expired signing keys", err, logger.Time("cutoff", cutoff))
		return nil, err
	}
	result.InvalidatedKeyIDs = invalidated

	for _, id := range invalidated {
		s.publish(ctx, models.LifecycleEvent{Type: constants.EventKeyInvalidated, KeyID: id, KeyType: keyType})
	}
	if len(invalidated) > 0 {
		s.logger.Info(ctx, "Signing keys invalidated", logger.Strings("key_ids", invalidated))
	}
	span.SetAttributes(
		attribute.String("generated_key_id", result.GeneratedKeyID),
		attribute.Int("invalidated", len(invalidated)),
	)
	return result, nil
}

func (s *KeyRotationService) generate(ctx context.Context, keyType models.KeyType, now time.Time) (*models.SigningKeyPair, error) {
	publicPEM, privatePEM, err := s.generator.GenerateKeyPair()
	if err != nil {
		s.logger.Error(ctx, "Failed to generate signing key pair", err, logger.String("key_type", string(keyType)))
		return nil, errors.ErrCryptoFailure("failed to generate signing key pair").WithCause(err)
	}
	encrypted, err := s.cipher.Encrypt(privatePEM)
	if err != nil {
		return nil, errors.ErrCryptoFailure("failed to encrypt signing key").WithCause(err)
	}

	key := &models.SigningKeyPair{
		ID:         uuid.New().String(),
		KeyType:    keyType,
		PublicKey:  publicPEM,
		PrivateKey: encrypted,
		CreatedAt:  now,
	}
	if err := s.keys.Create(ctx, key); err != nil {
		s.logger.Error(ctx, "Failed to store signing key pair", err, logger.String("kid", key.ID))
		return nil, err
	}

	s.logger.Info(ctx, "Signing key generated",
		logger.String("kid", key.ID),
		logger.String("key_type", string(keyType)),
	)
	s.publish(ctx, models.LifecycleEvent{Type: constants.EventKeyGenerated, KeyID: key.ID, KeyType: keyType})
	return key, nil
}

func (s *KeyRotationService) publish(ctx context.Context, event models.LifecycleEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn(ctx, "Failed to publish lifecycle event",
			logger.String("event_type", string(event.Type)),
			logger.String("kid", event.KeyID),
			logger.Err(err),
		)
	}
}
