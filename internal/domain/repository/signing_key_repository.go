package repository

import (
	"context"
	"time"

	"github.com/turtacn/authstore/internal/domain/models"
)

// SigningKeyRepository persists signing key pairs.
type SigningKeyRepository interface {
	// Create inserts a new key pair.
	Create(ctx context.Context, key *models.SigningKeyPair) error

	// FindByID returns a key pair by its kid.
	FindByID(ctx context.Context, id string) (*models.SigningKeyPair, error)

	// FindLatest returns the newest non-invalidated key of keyType.
	FindLatest(ctx context.Context, keyType models.KeyType) (*models.SigningKeyPair, error)

	// FindCreatedSince returns the non-invalidated keys of keyType created at or after
	// since, newest first.
	FindCreatedSince(ctx context.Context, keyType models.KeyType, since time.Time) ([]*models.SigningKeyPair, error)

	// InvalidateCreatedBefore sets InvalidatedAt to at on every non-invalidated key
	// created before cutoff and returns the affected IDs.
	InvalidateCreatedBefore(ctx context.Context, cutoff, at time.Time) ([]string, error)

	// List returns keys newest first, optionally including invalidated ones.
	List(ctx context.Context, includeInvalidated bool) ([]*models.SigningKeyPair, error)
}
