package postgres

import (
	"context"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/pkg/errors"
)

// Migrate creates or updates the schema of every table the store uses.
func (c *DBConnection) Migrate(ctx context.Context) error {
	err := c.db.WithContext(ctx).AutoMigrate(
		&models.AuthorizationEntity{},
		&models.SigningKeyPair{},
		&models.SchedulerLock{},
		&models.RegisteredClient{},
	)
	if err != nil {
		c.logger.Error(ctx, "Schema migration failed", err)
		return errors.ErrInternal("schema migration failed").WithCause(err)
	}
	c.logger.Info(ctx, "Schema migration completed")
	return nil
}
