// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/VA7DBI/scribeAPI/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = mr.Server().Addr().Port

	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRedisTokenStore(t *testing.T) {
	client, mr := setupRedis(t)
	store := NewRedisTokenStore(client, time.Second)
	ctx := context.Background()

	t.Run("ValidateNonExistentToken", func(t *testing.T) {
		id, err := store.ValidateToken(ctx, "non-existent")
		assert.NoError(t, err)
		assert.Nil(t, id)
	})

	t.Run("CacheAndValidateToken", func(t *testing.T) {
		err := store.CacheToken(ctx, "test-token", &Identity{UserID: "u1", Role: RoleAdmin})
		assert.NoError(t, err)

		id, err := store.ValidateToken(ctx, "test-token")
		assert.NoError(t, err)
		require.NotNil(t, id)
		assert.Equal(t, "u1", id.UserID)
		assert.True(t, id.IsAdmin())

		assert.False(t, mr.Exists("test-token"), "raw tokens are never used as keys")
		assert.True(t, mr.Exists(tokenKey("test-token")))
	})

	t.Run("TokenExpiration", func(t *testing.T) {
		err := store.CacheToken(ctx, "expiring-token", &Identity{UserID: "u2"})
		assert.NoError(t, err)

		mr.FastForward(2 * time.Second)

		id, err := store.ValidateToken(ctx, "expiring-token")
		assert.NoError(t, err)
		assert.Nil(t, id)
	})

	t.Run("CorruptEntry", func(t *testing.T) {
		require.NoError(t, mr.Set(tokenKey("bad"), "{not json"))
		_, err := store.ValidateToken(ctx, "bad")
		assert.Error(t, err)
	})
}

func TestNewRedisClientURL(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Redis.URL = "redis://" + mr.Addr() + "/0"
	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	client.Close()

	cfg.Redis.URL = "not-a-url"
	_, err = NewRedisClient(context.Background(), cfg)
	assert.Error(t, err)

	mr.Close()
	cfg.Redis.URL = ""
	cfg.Redis.Host, cfg.Redis.Port = "127.0.0.1", 1
	_, err = NewRedisClient(context.Background(), cfg)
	assert.Error(t, err)
}
