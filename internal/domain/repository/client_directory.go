package repository

import (
	"context"

	"github.com/turtacn/authstore/internal/domain/models"
)

// ClientDirectory is the read-only view of registered clients.
type ClientDirectory interface {
	// FindClient returns the client with clientID.
	FindClient(ctx context.Context, clientID string) (*models.RegisteredClient, error)

	// IsAccessible reports whether clientID exists, is usable and belongs to tenantID.
	IsAccessible(ctx context.Context, clientID, tenantID string) (bool, error)
}
