// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/VA7DBI/authAPI/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func setupRedisTest(t *testing.T) *miniredis.Miniredis {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mr.Close)
	return mr
}

func newTestRedisStore(t *testing.T, addr string, interval time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 200 * time.Millisecond,
		ReadTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	s := newRedisStore(client, NewMemoryStore(), zerolog.Nop())
	s.interval = interval
	s.timeout = 200 * time.Millisecond
	go s.monitor()
	t.Cleanup(func() { s.Close() })
	return s
}

func waitReady(t *testing.T, s *RedisStore) {
	t.Helper()
	require.Eventually(t, s.Available, waitFor, tick, "redis store never became ready")
}

func TestRedisTokenStore(t *testing.T) {
	mr := setupRedisTest(t)
	store := newTestRedisStore(t, mr.Addr(), 20*time.Millisecond)
	waitReady(t, store)
	ctx := context.Background()

	t.Run("NonExistentToken", func(t *testing.T) {
		revoked, err := store.Exists(ctx, "non-existent")
		assert.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("AddAndExists", func(t *testing.T) {
		err := store.Add(ctx, "jti-1", 30*time.Second)
		assert.NoError(t, err)

		revoked, err := store.Exists(ctx, "jti-1")
		assert.NoError(t, err)
		assert.True(t, revoked)

		assert.True(t, mr.Exists("revoked:jti-1"))
		assert.Equal(t, 30*time.Second, mr.TTL("revoked:jti-1"))
		assert.Equal(t, 0, store.fallback.Len(), "write should not touch the fallback")
	})

	t.Run("Expiration", func(t *testing.T) {
		err := store.Add(ctx, "expiring", time.Second)
		assert.NoError(t, err)

		mr.FastForward(2 * time.Second)

		revoked, err := store.Exists(ctx, "expiring")
		assert.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("NonPositiveTTL", func(t *testing.T) {
		assert.NoError(t, store.Add(ctx, "dead", 0))
		assert.NoError(t, store.Add(ctx, "deader", -5*time.Second))

		assert.False(t, mr.Exists("revoked:dead"))
		assert.False(t, mr.Exists("revoked:deader"))
		assert.Equal(t, 0, store.fallback.Len())
	})
}

func TestRedisStoreOutage(t *testing.T) {
	mr := setupRedisTest(t)
	store := newTestRedisStore(t, mr.Addr(), 20*time.Millisecond)
	waitReady(t, store)
	ctx := context.Background()

	mr.Close()
	require.Eventually(t, func() bool { return store.State() == Disconnected }, waitFor, tick)
	assert.False(t, store.Available())

	err := store.Add(ctx, "during-outage", time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, 1, store.fallback.Len())

	revoked, err := store.Exists(ctx, "during-outage")
	assert.NoError(t, err)
	assert.True(t, revoked)

	require.NoError(t, mr.Restart())
	waitReady(t, store)

	revoked, err = store.Exists(ctx, "during-outage")
	assert.NoError(t, err)
	assert.True(t, revoked, "revocations recorded during the outage must survive reconnection")
}

func TestRedisStoreNeverConnected(t *testing.T) {
	store := newTestRedisStore(t, "127.0.0.1:1", 20*time.Millisecond)
	ctx := context.Background()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, Connecting, store.State())
	assert.False(t, store.Available())

	assert.NoError(t, store.Add(ctx, "jti", time.Minute))
	revoked, err := store.Exists(ctx, "jti")
	assert.NoError(t, err)
	assert.True(t, revoked)
}

func TestRedisStoreErrorWhileReady(t *testing.T) {
	mr := setupRedisTest(t)
	// no further probes after the first one
	store := newTestRedisStore(t, mr.Addr(), time.Hour)
	waitReady(t, store)
	ctx := context.Background()

	mr.SetError("LOADING redis is loading the dataset in memory")

	_, err := store.Exists(ctx, "jti")
	assert.Error(t, err, "an unreachable backend must not read as not revoked")

	assert.NoError(t, store.Add(ctx, "jti", time.Minute))
	assert.Equal(t, 1, store.fallback.Len())

	revoked, err := store.Exists(ctx, "jti")
	assert.NoError(t, err)
	assert.True(t, revoked)
}

func TestNewRedisTokenStore(t *testing.T) {
	mr := setupRedisTest(t)

	t.Run("HostPort", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Auth.Redis.Host = mr.Host()
		cfg.Auth.Redis.Port = mr.Server().Addr().Port
		cfg.Auth.Redis.KeyPrefix = "jti:"
		cfg.Auth.Redis.ProbeInterval = 1

		store, err := NewRedisTokenStore(cfg, nil, zerolog.Nop())
		require.NoError(t, err)
		defer store.Close()
		waitReady(t, store)

		assert.NoError(t, store.Add(context.Background(), "abc", time.Minute))
		assert.True(t, mr.Exists("jti:abc"))
	})

	t.Run("URL", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Auth.Redis.URL = "redis://" + mr.Addr() + "/0"
		cfg.Auth.Redis.ProbeInterval = 1

		store, err := NewRedisTokenStore(cfg, nil, zerolog.Nop())
		require.NoError(t, err)
		defer store.Close()
		waitReady(t, store)
		assert.Equal(t, Ready, store.State())
	})

	t.Run("BadURL", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Auth.Redis.URL = "http://not-redis"

		_, err := NewRedisTokenStore(cfg, nil, zerolog.Nop())
		assert.Error(t, err)
	})
}
