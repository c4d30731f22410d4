package postgres

import (
	"context"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/repository"
	"github.com/turtacn/authstore/pkg/errors"
)

// ClientDirectory reads the registered_clients table owned by client registration.
type ClientDirectory struct {
	conn *DBConnection
}

var _ repository.ClientDirectory = (*ClientDirectory)(nil)

// NewClientDirectory creates a new ClientDirectory.
func NewClientDirectory(conn *DBConnection) *ClientDirectory {
	return &ClientDirectory{conn: conn}
}

// FindClient returns the client with clientID.
func (d *ClientDirectory) FindClient(ctx context.Context, clientID string) (*models.RegisteredClient, error) {
	var client models.RegisteredClient
	if err := d.conn.DB().WithContext(ctx).Where("client_id = ?", clientID).Take(&client).Error; err != nil {
		return nil, classifyError(ctx, err, "registered client not found")
	}
	return &client, nil
}

// IsAccessible reports whether clientID exists, is usable and belongs to tenantID.
func (d *ClientDirectory) IsAccessible(ctx context.Context, clientID, tenantID string) (bool, error) {
	client, err := d.FindClient(ctx, clientID)
	if errors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return client.AccessibleFrom(tenantID), nil
}
