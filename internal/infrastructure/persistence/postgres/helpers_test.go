package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/pkg/logger"
)

// newTestConn opens a private in-memory SQLite database with the full schema.
func newTestConn(t *testing.T) *DBConnection {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Driver:   "sqlite",
		Database: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}
	conn, err := NewDBConnection(context.Background(), cfg, logger.NewNoopLogger())
	require.NoError(t, err)
	require.NoError(t, conn.Migrate(context.Background()))
	t.Cleanup(conn.Close)
	return conn
}
