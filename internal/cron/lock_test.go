package cron

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	values map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestRedisLockReleasesOnlyOwnKey(t *testing.T) {
	ctx := context.Background()
	const key = "gh:lock:cron:daily"
	store := &memoryLockStore{values: map[string]string{}}
	first, err := NewRedisLock(store, key, time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, key, time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second lock must not take a held key")

	holder, err := second.Holder(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.owner, holder)
	assert.True(t, strings.Contains(holder, "/"), "holder is instance/token")

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, key, "non-owner release keeps the key")

	require.NoError(t, first.Release(ctx))
	assert.NotContains(t, store.values, key)

	holder, err = first.Holder(ctx)
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestRedisLockLeavesKeyTakenAfterExpiry(t *testing.T) {
	ctx := context.Background()
	const key = "gh:lock:cron:frequent"
	store := &memoryLockStore{values: map[string]string{}}
	lock, err := NewRedisLock(store, key, time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// simulate expiry and another instance taking over
	store.values[key] = "other-host/abc"
	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "other-host/abc", store.values[key])
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", time.Minute)
	assert.Error(t, err)
	_, err = NewRedisLock(&memoryLockStore{}, "", time.Minute)
	assert.Error(t, err)

	lock, err := NewRedisLock(&memoryLockStore{}, "k", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLockTTL, lock.ttl)
}
