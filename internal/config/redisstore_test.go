package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests talk to a real Redis instance. Skip them in short mode or
// when Redis isn't reachable rather than faking the client.

func getTestRedisConfig() RedisConfig {
	return RedisConfig{
		Host:     "localhost",
		Port:     6379,
		Password: "",
		Database: 15,
		PoolSize: 10,
	}
}

func openTestStore(t *testing.T) *RedisStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}
	store, err := NewRedisStore(getTestRedisConfig())
	if err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}
	return store
}

func TestNewRedisStoreHealth(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	require.NoError(t, store.Health(context.Background()))
}

func TestSaveAndLoadTuning(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	tuning := Tuning{
		Size:                8,
		MaxIdleSeconds:      30 * time.Second,
		MaxExecCount:        5000,
		MaxWaitTimeoutCount: 3,
	}

	require.NoError(t, store.SaveTuning(ctx, tuning))

	loaded, err := store.LoadTuning(ctx)
	require.NoError(t, err)
	assert.Equal(t, tuning, loaded)
}

func TestWatchReceivesSavedTuning(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reloadCh, err := store.Watch(ctx)
	require.NoError(t, err)

	tuning := Tuning{Size: 4, MaxIdleSeconds: time.Minute, MaxExecCount: 1000, MaxWaitTimeoutCount: 2}
	require.NoError(t, store.SaveTuning(ctx, tuning))

	select {
	case got := <-reloadCh:
		assert.Equal(t, tuning, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tuning reload notification")
	}
}

func TestLoadTuningMissingKeyFails(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.client.Del(ctx, tuningKey).Err())

	_, err := store.LoadTuning(ctx)
	assert.Error(t, err)
}
