// Package mocks provides testify mocks of the domain service contracts.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/service"
)

// MockEventPublisher is a mock of service.EventPublisher.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event models.LifecycleEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockLockProvider is a mock of service.LockProvider.
type MockLockProvider struct {
	mock.Mock
}

func (m *MockLockProvider) TryLock(ctx context.Context, name string, hold service.LockHold) (bool, error) {
	args := m.Called(ctx, name, hold)
	return args.Bool(0), args.Error(1)
}

func (m *MockLockProvider) Unlock(ctx context.Context, name string, hold service.LockHold) error {
	args := m.Called(ctx, name, hold)
	return args.Error(0)
}

// MockClientDirectory is a mock of repository.ClientDirectory.
type MockClientDirectory struct {
	mock.Mock
}

func (m *MockClientDirectory) FindClient(ctx context.Context, clientID string) (*models.RegisteredClient, error) {
	args := m.Called(ctx, clientID)
	client, _ := args.Get(0).(*models.RegisteredClient)
	return client, args.Error(1)
}

func (m *MockClientDirectory) IsAccessible(ctx context.Context, clientID, tenantID string) (bool, error) {
	args := m.Called(ctx, clientID, tenantID)
	return args.Bool(0), args.Error(1)
}

// MockTokenCipher is a mock of service.TokenCipher.
type MockTokenCipher struct {
	mock.Mock
}

func (m *MockTokenCipher) Encrypt(plaintext string) (string, error) {
	args := m.Called(plaintext)
	return args.String(0), args.Error(1)
}

func (m *MockTokenCipher) Decrypt(ciphertext string) (string, error) {
	args := m.Called(ciphertext)
	return args.String(0), args.Error(1)
}

// MockMetrics is a mock of service.Metrics.
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordStoreOperation(operation string, errorCode string, duration time.Duration) {
	m.Called(operation, errorCode, duration)
}

func (m *MockMetrics) RecordCryptoTimeout(operation string) {
	m.Called(operation)
}

func (m *MockMetrics) RecordRotation(result string, generated, invalidated int) {
	m.Called(result, generated, invalidated)
}

func (m *MockMetrics) RecordTokenSigned(keyType string, success bool) {
	m.Called(keyType, success)
}

func (m *MockMetrics) RecordCacheAccess(cacheType string, hit bool) {
	m.Called(cacheType, hit)
}

var (
	_ service.EventPublisher = (*MockEventPublisher)(nil)
	_ service.LockProvider   = (*MockLockProvider)(nil)
	_ service.TokenCipher    = (*MockTokenCipher)(nil)
	_ service.Metrics        = (*MockMetrics)(nil)
)
