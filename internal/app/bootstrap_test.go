package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sokoni/backend/internal/app"
	"sokoni/backend/internal/config"
)

type statefulMockStore struct {
	callCount int
	failUntil int
}

func (m *statefulMockStore) EnsureSchema(ctx context.Context) error {
	m.callCount++
	if m.callCount <= m.failUntil {
		return errors.New("schema error")
	}
	return nil
}

func TestEnsureSchemaWithRetry_Success(t *testing.T) {
	mock := &statefulMockStore{}
	err := app.EnsureSchemaWithRetry(context.Background(), mock, 1, 1*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 1, mock.callCount)
}

func TestEnsureSchemaWithRetry_Retries(t *testing.T) {
	mock := &statefulMockStore{failUntil: 2}
	err := app.EnsureSchemaWithRetry(context.Background(), mock, 5, 1*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 3, mock.callCount)
}

func TestEnsureSchemaWithRetry_Fail(t *testing.T) {
	mock := &statefulMockStore{failUntil: 100}
	err := app.EnsureSchemaWithRetry(context.Background(), mock, 3, 1*time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, 3, mock.callCount)
}

func TestBootstrap_ConfigurationError(t *testing.T) {
	cfg := &config.Config{
		DBHost: "invalid-host",
	}
	deps, err := app.Bootstrap(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, deps)
}
