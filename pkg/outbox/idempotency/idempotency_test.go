package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	keys   map[string]any
	ttls   map[string]time.Duration
	setErr error
	delErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{keys: map[string]any{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.keys[key]; ok {
		return v.(string), nil
	}
	return "", errors.New("missing")
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key] = value
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "gh:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if f.delErr != nil {
		return f.delErr
	}
	for _, key := range keys {
		delete(f.keys, key)
	}
	return nil
}

func TestOnceRunsFirstDeliveryOnly(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, 24*time.Hour)
	require.NoError(t, err)
	manager.now = func() time.Time { return time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC) }

	eventID := uuid.New()
	calls := 0
	handle := func(context.Context) error { calls++; return nil }

	ran, err := manager.Once(context.Background(), "order-notifications", eventID, handle)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = manager.Once(context.Background(), "order-notifications", eventID, handle)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1, calls)

	key := "gh:idempotency:evt:order-notifications:" + eventID.String()
	assert.Equal(t, "2026-03-10T08:00:00Z", store.keys[key])
	assert.Equal(t, 24*time.Hour, store.ttls[key])
}

func TestOnceReleasesClaimWhenHandlerFails(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	eventID := uuid.New()
	boom := errors.New("twilio unavailable")
	ran, err := manager.Once(context.Background(), "order-notifications", eventID, func(context.Context) error { return boom })
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.keys)

	ran, err = manager.Once(context.Background(), "order-notifications", eventID, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, ran, "redelivery should run again")
}

func TestOnceReportsReleaseFailure(t *testing.T) {
	store := newFakeStore()
	store.delErr = errors.New("redis down")
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	boom := errors.New("handler failed")
	_, err = manager.Once(context.Background(), "c", uuid.New(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, store.delErr)
}

func TestOnceClaimError(t *testing.T) {
	store := newFakeStore()
	store.setErr = errors.New("boom")
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	ran, err := manager.Once(context.Background(), "c", uuid.New(), func(context.Context) error {
		t.Fatal("handler must not run without a claim")
		return nil
	})
	assert.False(t, ran)
	assert.ErrorIs(t, err, store.setErr)
}

func TestOnceValidatesArguments(t *testing.T) {
	manager, err := NewManager(newFakeStore(), time.Hour)
	require.NoError(t, err)
	noop := func(context.Context) error { return nil }

	_, err = manager.Once(context.Background(), "", uuid.New(), noop)
	assert.Error(t, err)
	_, err = manager.Once(context.Background(), "c", uuid.Nil, noop)
	assert.Error(t, err)

	_, err = NewManager(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewManager(newFakeStore(), -time.Second)
	assert.Error(t, err)
}
