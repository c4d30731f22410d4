package application

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

// RotationScheduler ticks the key rotation under a cluster-wide lock so that at most
// one node rotates at a time. Expired authorization records are purged on the same
// tick when a purger is configured.
type RotationScheduler struct {
	rotator  *KeyRotationService
	purger   *AuthorizationService
	locks    service.LockProvider
	hold     service.LockHold
	interval time.Duration
	metrics  service.Metrics
	logger   logger.Logger
}

// NewRotationScheduler creates a scheduler. purger may be nil.
func NewRotationScheduler(
	rotator *KeyRotationService,
	purger *AuthorizationService,
	locks service.LockProvider,
	hold service.LockHold,
	interval time.Duration,
	metrics service.Metrics,
	log logger.Logger,
) *RotationScheduler {
	if interval <= 0 {
		interval = constants.DefaultRotationInterval
	}
	if hold.Max <= 0 {
		hold.Max = constants.DefaultLockMaxHold
	}
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	return &RotationScheduler{
		rotator:  rotator,
		purger:   purger,
		locks:    locks,
		hold:     hold,
		interval: interval,
		metrics:  metrics,
		logger:   log.WithComponent("rotation_scheduler"),
	}
}

// Run ticks immediately and then every interval until ctx is cancelled. Tick
// failures are logged and never stop the loop.
func (s *RotationScheduler) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Rotation scheduler started", logger.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.Error(ctx, "Rotation tick failed", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info(context.Background(), "Rotation scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one rotation pass followed by the expiry purge if the cluster lock can
// be taken, and reports whether it ran.
func (s *RotationScheduler) Tick(ctx context.Context) (ran bool, err error) {
	return s.locked(ctx, true)
}

// RotateNow runs a rotation pass without the purge. The signer calls it when no
// active key exists between two ticks.
func (s *RotationScheduler) RotateNow(ctx context.Context) (ran bool, err error) {
	return s.locked(ctx, false)
}

func (s *RotationScheduler) locked(ctx context.Context, purge bool) (ran bool, err error) {
	acquired, err := s.locks.TryLock(ctx, constants.RotationLockName, s.hold)
	if err != nil {
		s.metrics.RecordRotation("lock_failed", 0, 0)
		return false, err
	}
	if !acquired {
		s.logger.Debug(ctx, "Rotation lock held by another node, skipping pass")
		s.metrics.RecordRotation("skipped", 0, 0)
		return false, nil
	}

	defer func() {
		if unlockErr := s.locks.Unlock(context.WithoutCancel(ctx), constants.RotationLockName, s.hold); unlockErr != nil {
			s.logger.Warn(ctx, "Failed to release rotation lock", logger.Err(unlockErr))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = errors.ErrInternal(fmt.Sprintf("rotation pass panicked: %v", r))
			ran = true
		}
	}()

	passCtx, cancel := context.WithTimeout(ctx, s.hold.Max)
	defer cancel()

	result, err := s.rotator.Rotate(passCtx)
	if err != nil {
		return true, err
	}
	if result.GeneratedKeyID != "" || len(result.InvalidatedKeyIDs) > 0 {
		s.logger.Info(ctx, "Rotation pass completed",
			logger.String("generated_key_id", result.GeneratedKeyID),
			logger.Int("invalidated", len(result.InvalidatedKeyIDs)),
			logger.Bool("scheduled", purge),
		)
	}

	if purge && s.purger != nil {
		if _, err := s.purger.PurgeExpired(passCtx, 0); err != nil {
			return true, err
		}
	}
	return true, nil
}
