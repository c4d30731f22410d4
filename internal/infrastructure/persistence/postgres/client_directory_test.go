package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/pkg/errors"
)

func TestClientDirectory(t *testing.T) {
	ctx := context.Background()
	conn := newTestConn(t)
	require.NoError(t, conn.DB().Create(&models.RegisteredClient{ClientID: "c1", TenantID: "t1", ClientName: "Portal"}).Error)
	require.NoError(t, conn.DB().Create(&models.RegisteredClient{ClientID: "c2", TenantID: "t1", Invalidated: true}).Error)

	dir := NewClientDirectory(conn)

	client, err := dir.FindClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Portal", client.ClientName)

	_, err = dir.FindClient(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	tests := []struct {
		client, tenant string
		want           bool
	}{
		{"c1", "t1", true},
		{"c1", "t2", false},
		{"c2", "t1", false},
		{"missing", "t1", false},
	}
	for _, tt := range tests {
		ok, err := dir.IsAccessible(ctx, tt.client, tt.tenant)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ok, "%s/%s", tt.client, tt.tenant)
	}
}
