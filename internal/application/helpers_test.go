package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/infrastructure/crypto"
	"github.com/turtacn/authstore/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/authstore/pkg/logger"
)

const testSecret = "application-test-secret"

func newTestConn(t *testing.T) *postgres.DBConnection {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Driver:   "sqlite",
		Database: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}
	conn, err := postgres.NewDBConnection(context.Background(), cfg, logger.NewNoopLogger())
	require.NoError(t, err)
	require.NoError(t, conn.Migrate(context.Background()))
	t.Cleanup(conn.Close)
	return conn
}

func seedClient(t *testing.T, conn *postgres.DBConnection, clientID, tenantID string) {
	t.Helper()
	require.NoError(t, conn.DB().Create(&models.RegisteredClient{
		ClientID:   clientID,
		TenantID:   tenantID,
		ClientName: clientID,
	}).Error)
}

func newTestCipher(t *testing.T, secret string) *crypto.AESGCMCipher {
	t.Helper()
	cipher, err := crypto.NewAESGCMCipher(secret)
	require.NoError(t, err)
	return cipher
}

func newTestHasher(t *testing.T) *crypto.DigestHasher {
	t.Helper()
	hasher, err := crypto.NewDigestHasher("sha256")
	require.NoError(t, err)
	return hasher
}

func newTestPipeline() *CryptoPipeline {
	return NewCryptoPipeline(config.CryptoConfig{Timeout: 5 * time.Second, OverallTimeout: 10 * time.Second}, nil)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// recordingCookies captures mirrored state values.
type recordingCookies struct {
	states []string
}

func (r *recordingCookies) WriteStateCookie(state string) {
	r.states = append(r.states, state)
}
