package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return v, nil
}

func (m *memoryStore) GetDel(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	delete(m.data, key)
	return v, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) AccessSessionKey(accessID string) string { return "sess:" + accessID }

func newTestManager(t *testing.T, store *memoryStore) *Manager {
	t.Helper()
	m, err := NewManager(store, config.JWTConfig{ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60 * 24})
	require.NoError(t, err)
	return m
}

func TestGenerateStoresDigestOnly(t *testing.T) {
	store := newMemoryStore()
	m := newTestManager(t, store)
	owner := Owner{UserID: uuid.New(), Role: enums.UserRoleStaff}

	token, err := m.Generate(context.Background(), "access-123", owner)
	require.NoError(t, err)
	stored := store.data["sess:access-123"]
	assert.NotContains(t, stored, token)
	assert.Contains(t, stored, owner.UserID.String())
	assert.Equal(t, 24*time.Hour, store.ttls["sess:access-123"])

	_, err = m.Generate(context.Background(), "access-456", Owner{})
	assert.Error(t, err)
	_, err = m.Generate(context.Background(), " ", owner)
	assert.Error(t, err)
}

func TestRotateIsSingleUse(t *testing.T) {
	store := newMemoryStore()
	m := newTestManager(t, store)
	ctx := context.Background()
	owner := Owner{UserID: uuid.New(), Role: enums.UserRoleAdmin}

	token, err := m.Generate(ctx, "access-123", owner)
	require.NoError(t, err)

	rotation, err := m.Rotate(ctx, "access-123", token)
	require.NoError(t, err)
	assert.Equal(t, owner, rotation.Owner)
	assert.NotEqual(t, token, rotation.RefreshToken)
	assert.NotEqual(t, "access-123", rotation.AccessID)
	assert.NotContains(t, store.data, "sess:access-123")

	_, err = m.Rotate(ctx, "access-123", token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken, "replay of a rotated token")

	_, err = m.Rotate(ctx, rotation.AccessID, rotation.RefreshToken)
	assert.NoError(t, err)
}

func TestRotateWithWrongTokenEndsSession(t *testing.T) {
	store := newMemoryStore()
	m := newTestManager(t, store)
	ctx := context.Background()

	token, err := m.Generate(ctx, "access-1", Owner{UserID: uuid.New(), Role: enums.UserRoleStaff})
	require.NoError(t, err)

	_, err = m.Rotate(ctx, "access-1", "guess")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	_, err = m.Rotate(ctx, "access-1", token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRotateConcurrentOnlyOneWins(t *testing.T) {
	store := newMemoryStore()
	m := newTestManager(t, store)
	ctx := context.Background()
	token, err := m.Generate(ctx, "access-race", Owner{UserID: uuid.New(), Role: enums.UserRoleStaff})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Rotate(ctx, "access-race", token); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRotateRejectsUnreadableValue(t *testing.T) {
	store := newMemoryStore()
	store.data["sess:legacy"] = "plain-refresh-token"
	_, err := newTestManager(t, store).Rotate(context.Background(), "legacy", "plain-refresh-token")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRevokeEndsSession(t *testing.T) {
	store := newMemoryStore()
	m := newTestManager(t, store)
	ctx := context.Background()

	_, err := m.Generate(ctx, "access-1", Owner{UserID: uuid.New(), Role: enums.UserRoleStaff})
	require.NoError(t, err)
	ok, err := m.HasSession(ctx, "access-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Revoke(ctx, "access-1"))
	ok, err = m.HasSession(ctx, "access-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Error(t, m.Revoke(ctx, ""))
}

func TestNewManagerRejectsShortRefresh(t *testing.T) {
	_, err := NewManager(newMemoryStore(), config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 30})
	assert.Error(t, err)
	_, err = NewManager(nil, config.JWTConfig{})
	assert.Error(t, err)
}
