package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/repository"
	"github.com/turtacn/authstore/pkg/logger"
)

// SigningKeyRepository is the gorm implementation of repository.SigningKeyRepository.
type SigningKeyRepository struct {
	conn   *DBConnection
	logger logger.Logger
}

var _ repository.SigningKeyRepository = (*SigningKeyRepository)(nil)

// NewSigningKeyRepository creates a new SigningKeyRepository.
func NewSigningKeyRepository(conn *DBConnection, log logger.Logger) *SigningKeyRepository {
	return &SigningKeyRepository{conn: conn, logger: log.WithComponent("signing_key_repository")}
}

// Create inserts a new key pair.
func (r *SigningKeyRepository) Create(ctx context.Context, key *models.SigningKeyPair) error {
	if err := r.conn.DB().WithContext(ctx).Create(key).Error; err != nil {
		return classifyError(ctx, err, "failed to create signing key")
	}
	return nil
}

// FindByID returns a key pair by its kid.
func (r *SigningKeyRepository) FindByID(ctx context.Context, id string) (*models.SigningKeyPair, error) {
	var key models.SigningKeyPair
	if err := r.conn.DB().WithContext(ctx).Where("id = ?", id).Take(&key).Error; err != nil {
		return nil, classifyError(ctx, err, "signing key not found")
	}
	return &key, nil
}

// FindLatest returns the newest non-invalidated key of keyType.
func (r *SigningKeyRepository) FindLatest(ctx context.Context, keyType models.KeyType) (*models.SigningKeyPair, error) {
	var key models.SigningKeyPair
	err := r.conn.DB().WithContext(ctx).
		Where("key_type = ? AND invalidated_at IS NULL", keyType).
		Order("created_at DESC").
		Take(&key).Error
	if err != nil {
		return nil, classifyError(ctx, err, "no signing key of type "+string(keyType))
	}
	return &key, nil
}

// FindCreatedSince returns the non-invalidated keys of keyType created at or after since.
func (r *SigningKeyRepository) FindCreatedSince(ctx context.Context, keyType models.KeyType, since time.Time) ([]*models.SigningKeyPair, error) {
	var keys []*models.SigningKeyPair
	err := r.conn.DB().WithContext(ctx).
		Where("key_type = ? AND invalidated_at IS NULL AND created_at >= ?", keyType, since.UTC()).
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		return nil, classifyError(ctx, err, "failed to list signing keys")
	}
	return keys, nil
}

// InvalidateCreatedBefore marks every usable key created before cutoff as invalidated.
func (r *SigningKeyRepository) InvalidateCreatedBefore(ctx context.Context, cutoff, at time.Time) ([]string, error) {
	var ids []string
	err := r.conn.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SigningKeyPair{}).
			Where("invalidated_at IS NULL AND created_at < ?", cutoff.UTC()).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&models.SigningKeyPair{}).
			Where("id IN ? AND invalidated_at IS NULL", ids).
			Update("invalidated_at", at.UTC()).Error
	}, r.conn.TxOptions())
	if err != nil {
		return nil, classifyError(ctx, err, "failed to invalidate signing keys")
	}

	if len(ids) > 0 {
		r.logger.Info(ctx, "Signing keys invalidated",
			logger.Strings("key_ids", ids),
			logger.Time("cutoff", cutoff),
		)
	}
	return ids, nil
}

// List returns keys newest first.
func (r *SigningKeyRepository) List(ctx context.Context, includeInvalidated bool) ([]*models.SigningKeyPair, error) {
	query := r.conn.DB().WithContext(ctx).Order("created_at DESC")
	if !includeInvalidated {
		query = query.Where("invalidated_at IS NULL")
	}
	var keys []*models.SigningKeyPair
	if err := query.Find(&keys).Error; err != nil {
		return nil, classifyError(ctx, err, "failed to list signing keys")
	}
	return keys, nil
}
