// Package repository defines the persistence contracts of the domain.
package repository

import (
	"context"
	"time"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/pkg/constants"
)

// TokenLookup describes how a token value is matched against stored records.
// State is compared in plaintext; every other token type is matched by the hex
// digest of its plaintext. With TokenTypeUnspecified all lookup columns are tried.
type TokenLookup struct {
	Type  constants.TokenType
	Value string
	Hash  string
}

// AuthorizationRepository persists authorization entities.
type AuthorizationRepository interface {
	// Save merges entity into the row with the same natural key, or inserts it when
	// no such row exists, inside one transaction. It returns the stored entity.
	Save(ctx context.Context, entity *models.AuthorizationEntity) (*models.AuthorizationEntity, error)

	// DeleteByNaturalKey removes the row identified by key and returns its ID.
	// Removing a missing row is not an error and returns an empty ID.
	DeleteByNaturalKey(ctx context.Context, key models.NaturalKey) (string, error)

	// FindByID returns the row with the given primary key.
	FindByID(ctx context.Context, id string) (*models.AuthorizationEntity, error)

	// FindByToken returns the first row matching lookup.
	FindByToken(ctx context.Context, lookup TokenLookup) (*models.AuthorizationEntity, error)

	// DeleteExpired removes rows whose every token expired before cutoff and returns
	// the removed IDs.
	DeleteExpired(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}
