package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/repository"
	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/logger"
)

const naturalKeyQuery = "registered_client_id = ? AND principal_name = ? AND grant_type = ?"

// AuthorizationRepository is the gorm implementation of repository.AuthorizationRepository.
type AuthorizationRepository struct {
	conn   *DBConnection
	logger logger.Logger
}

var _ repository.AuthorizationRepository = (*AuthorizationRepository)(nil)

// NewAuthorizationRepository creates a new AuthorizationRepository.
func NewAuthorizationRepository(conn *DBConnection, log logger.Logger) *AuthorizationRepository {
	return &AuthorizationRepository{conn: conn, logger: log.WithComponent("authorization_repository")}
}

// Save merges entity into the row sharing its natural key inside one write transaction.
// Non-empty incoming fields replace stored ones and the stored ID wins.
func (r *AuthorizationRepository) Save(ctx context.Context, entity *models.AuthorizationEntity) (*models.AuthorizationEntity, error) {
	var stored *models.AuthorizationEntity

	err := r.conn.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.AuthorizationEntity
		key := entity.NaturalKey()
		err := tx.Where(naturalKeyQuery, key.RegisteredClientID, key.PrincipalName, key.GrantType).
			Take(&existing).Error

		switch {
		case stderrors.Is(err, gorm.ErrRecordNotFound):
			created := *entity
			if created.ID == "" {
				created.ID = uuid.NewString()
			}
			if err := tx.Create(&created).Error; err != nil {
				return err
			}
			stored = &created
			return nil
		case err != nil:
			return err
		}

		existing.MergeFrom(entity)
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		stored = &existing
		return nil
	}, r.conn.TxOptions())

	if err != nil {
		return nil, classifyError(ctx, err, "failed to save authorization")
	}

	r.logger.Debug(ctx, "Authorization saved",
		logger.String("authorization_id", stored.ID),
		logger.String("client_id", stored.RegisteredClientID),
		logger.String("grant_type", stored.GrantType),
	)
	return stored, nil
}

// DeleteByNaturalKey removes the row identified by key.
func (r *AuthorizationRepository) DeleteByNaturalKey(ctx context.Context, key models.NaturalKey) (string, error) {
	var existing models.AuthorizationEntity
	err := r.conn.DB().WithContext(ctx).
		Select("id").
		Where(naturalKeyQuery, key.RegisteredClientID, key.PrincipalName, key.GrantType).
		Take(&existing).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", classifyError(ctx, err, "failed to look up authorization for removal")
	}

	res := r.conn.DB().WithContext(ctx).
		Where("id = ?", existing.ID).
		Delete(&models.AuthorizationEntity{})
	if res.Error != nil {
		return "", classifyError(ctx, res.Error, "failed to remove authorization")
	}
	if res.RowsAffected == 0 {
		return "", nil
	}
	return existing.ID, nil
}

// FindByID returns the row with the given primary key.
func (r *AuthorizationRepository) FindByID(ctx context.Context, id string) (*models.AuthorizationEntity, error) {
	var entity models.AuthorizationEntity
	if err := r.conn.DB().WithContext(ctx).Where("id = ?", id).Take(&entity).Error; err != nil {
		return nil, classifyError(ctx, err, "authorization not found")
	}
	return &entity, nil
}

// FindByToken returns the most recently updated row matching lookup.
func (r *AuthorizationRepository) FindByToken(ctx context.Context, lookup repository.TokenLookup) (*models.AuthorizationEntity, error) {
	query := r.conn.DB().WithContext(ctx).Model(&models.AuthorizationEntity{})

	switch lookup.Type {
	case constants.TokenTypeState:
		query = query.Where("state = ?", lookup.Value)
	case constants.TokenTypeCode:
		query = query.Where("authorization_code_hash = ?", lookup.Hash)
	case constants.TokenTypeAccess:
		query = query.Where("access_token_hash = ?", lookup.Hash)
	case constants.TokenTypeRefresh:
		query = query.Where("refresh_token_hash = ?", lookup.Hash)
	default:
		query = query.Where(
			"state = ? OR authorization_code_hash = ? OR access_token_hash = ? OR refresh_token_hash = ?",
			lookup.Value, lookup.Hash, lookup.Hash, lookup.Hash,
		)
	}

	var entity models.AuthorizationEntity
	if err := query.Order("updated_at DESC").Take(&entity).Error; err != nil {
		return nil, classifyError(ctx, err, "authorization not found")
	}
	return &entity, nil
}

// DeleteExpired removes up to limit rows whose tokens all expired before cutoff.
// Rows carrying no expiry at all are kept.
func (r *AuthorizationRepository) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.conn.DB().WithContext(ctx).
		Model(&models.AuthorizationEntity{}).
		Where("(authorization_code_expires_at IS NULL OR authorization_code_expires_at < ?)", cutoff).
		Where("(access_token_expires_at IS NULL OR access_token_expires_at < ?)", cutoff).
		Where("(refresh_token_expires_at IS NULL OR refresh_token_expires_at < ?)", cutoff).
		Where("NOT (authorization_code_expires_at IS NULL AND access_token_expires_at IS NULL AND refresh_token_expires_at IS NULL)").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, classifyError(ctx, err, "failed to select expired authorizations")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if err := r.conn.DB().WithContext(ctx).Where("id IN ?", ids).Delete(&models.AuthorizationEntity{}).Error; err != nil {
		return nil, classifyError(ctx, err, "failed to delete expired authorizations")
	}

	r.logger.Info(ctx, "Expired authorizations purged", logger.Int("count", len(ids)))
	return ids, nil
}
