package application

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/errors"
)

const (
	fieldCode    = "authorization_code"
	fieldAccess  = "access_token"
	fieldRefresh = "refresh_token"
)

// toEntity encrypts and hashes the token values of record and flattens it into its
// persisted form.
func (s *AuthorizationService) toEntity(ctx context.Context, record *models.AuthorizationRecord, tenantID string) (*models.AuthorizationEntity, error) {
	plaintexts := make(map[string]string, 3)
	if record.AuthorizationCode != nil && record.AuthorizationCode.Value != "" {
		plaintexts[fieldCode] = record.AuthorizationCode.Value
	}
	if record.AccessToken != nil && record.AccessToken.Value != "" {
		plaintexts[fieldAccess] = record.AccessToken.Value
	}
	if record.RefreshToken != nil && record.RefreshToken.Value != "" {
		plaintexts[fieldRefresh] = record.RefreshToken.Value
	}

	encrypted, err := s.pipeline.Run(ctx, "encrypt", s.cipher.Encrypt, plaintexts)
	if err != nil {
		return nil, err
	}

	entity := &models.AuthorizationEntity{
		ID:                 record.ID,
		RegisteredClientID: record.RegisteredClientID,
		PrincipalName:      record.PrincipalName,
		GrantType:          record.GrantType,
		TenantID:           tenantID,
		State:              record.State,
		AuthorizedScopes:   joinScopes(record.AuthorizedScopes),
	}
	if entity.Attributes, err = marshalMap(record.Attributes); err != nil {
		return nil, err
	}

	if code := record.AuthorizationCode; code != nil {
		entity.AuthorizationCodeValue = encrypted[fieldCode]
		entity.AuthorizationCodeHash = s.hashIfSet(code.Value)
		entity.AuthorizationCodeIssuedAt = utc(code.IssuedAt)
		entity.AuthorizationCodeExpiresAt = utc(code.ExpiresAt)
		if entity.AuthorizationCodeMetadata, err = marshalMap(code.Metadata); err != nil {
			return nil, err
		}
	}
	if access := record.AccessToken; access != nil {
		entity.AccessTokenValue = encrypted[fieldAccess]
		entity.AccessTokenHash = s.hashIfSet(access.Value)
		entity.AccessTokenIssuedAt = utc(access.IssuedAt)
		entity.AccessTokenExpiresAt = utc(access.ExpiresAt)
		entity.AccessTokenScopes = joinScopes(access.Scopes)
		entity.AccessTokenType = access.TokenType
		if entity.AccessTokenValue != "" && entity.AccessTokenType == "" {
			entity.AccessTokenType = constants.AccessTokenTypeBearer
		}
		if entity.AccessTokenMetadata, err = marshalMap(access.Metadata); err != nil {
			return nil, err
		}
	}
	if refresh := record.RefreshToken; refresh != nil {
		entity.RefreshTokenValue = encrypted[fieldRefresh]
		entity.RefreshTokenHash = s.hashIfSet(refresh.Value)
		entity.RefreshTokenIssuedAt = utc(refresh.IssuedAt)
		entity.RefreshTokenExpiresAt = utc(refresh.ExpiresAt)
		if entity.RefreshTokenMetadata, err = marshalMap(refresh.Metadata); err != nil {
			return nil, err
		}
	}
	return entity, nil
}

// toRecord decrypts the token values of entity. It never returns a partially
// decrypted record.
func (s *AuthorizationService) toRecord(ctx context.Context, entity *models.AuthorizationEntity) (*models.AuthorizationRecord, error) {
	ciphertexts := make(map[string]string, 3)
	if entity.AuthorizationCodeValue != "" {
		ciphertexts[fieldCode] = entity.AuthorizationCodeValue
	}
	if entity.AccessTokenValue != "" {
		ciphertexts[fieldAccess] = entity.AccessTokenValue
	}
	if entity.RefreshTokenValue != "" {
		ciphertexts[fieldRefresh] = entity.RefreshTokenValue
	}

	plaintexts, err := s.pipeline.Run(ctx, "decrypt", s.cipher.Decrypt, ciphertexts)
	if err != nil {
		return nil, errors.ErrCryptoFailure("failed to decrypt authorization record").
			WithCause(err).
			WithMetadata("authorization_id", entity.ID)
	}

	record := &models.AuthorizationRecord{
		ID:                 entity.ID,
		RegisteredClientID: entity.RegisteredClientID,
		PrincipalName:      entity.PrincipalName,
		GrantType:          entity.GrantType,
		TenantID:           entity.TenantID,
		State:              entity.State,
		AuthorizedScopes:   splitScopes(entity.AuthorizedScopes),
	}
	if record.Attributes, err = unmarshalMap(entity.Attributes); err != nil {
		return nil, err
	}

	if value, ok := plaintexts[fieldCode]; ok || entity.AuthorizationCodeExpiresAt != nil {
		record.AuthorizationCode = &models.OAuth2Token{
			Value:     value,
			IssuedAt:  entity.AuthorizationCodeIssuedAt,
			ExpiresAt: entity.AuthorizationCodeExpiresAt,
		}
		if record.AuthorizationCode.Metadata, err = unmarshalMap(entity.AuthorizationCodeMetadata); err != nil {
			return nil, err
		}
	}
	if value, ok := plaintexts[fieldAccess]; ok || entity.AccessTokenExpiresAt != nil {
		record.AccessToken = &models.AccessToken{
			OAuth2Token: models.OAuth2Token{
				Value:     value,
				IssuedAt:  entity.AccessTokenIssuedAt,
				ExpiresAt: entity.AccessTokenExpiresAt,
			},
			TokenType: entity.AccessTokenType,
			Scopes:    splitScopes(entity.AccessTokenScopes),
		}
		if record.AccessToken.Metadata, err = unmarshalMap(entity.AccessTokenMetadata); err != nil {
			return nil, err
		}
	}
	if value, ok := plaintexts[fieldRefresh]; ok || entity.RefreshTokenExpiresAt != nil {
		record.RefreshToken = &models.OAuth2Token{
			Value:     value,
			IssuedAt:  entity.RefreshTokenIssuedAt,
			ExpiresAt: entity.RefreshTokenExpiresAt,
		}
		if record.RefreshToken.Metadata, err = unmarshalMap(entity.RefreshTokenMetadata); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func (s *AuthorizationService) hashIfSet(value string) string {
	if value == "" {
		return ""
	}
	return s.hasher.Hash(value)
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, ",")
}

func splitScopes(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

func marshalMap(m map[string]interface{}) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", errors.ErrValidation("metadata is not serializable").WithCause(err)
	}
	return string(raw), nil
}

func unmarshalMap(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, errors.ErrInternal("stored metadata is corrupt").WithCause(err)
	}
	return m, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
