// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/VA7DBI/scribeAPI/config"
	"github.com/redis/go-redis/v9"
)

const tokenKeyPrefix = "scribeapi:token:"

// NewRedisClient connects using redis.url when set, else host/port.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	var opts *redis.Options
	if cfg.Redis.URL != "" {
		parsed, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// RedisTokenStore caches resolved identities. Keys are token hashes.
type RedisTokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTokenStore(client *redis.Client, ttl time.Duration) *RedisTokenStore {
	return &RedisTokenStore{client: client, ttl: ttl}
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return tokenKeyPrefix + hex.EncodeToString(sum[:])
}

func (s *RedisTokenStore) ValidateToken(ctx context.Context, token string) (*Identity, error) {
	raw, err := s.client.Get(ctx, tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf("corrupt cached identity: %w", err)
	}
	return &id, nil
}

func (s *RedisTokenStore) CacheToken(ctx context.Context, token string, id *Identity) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, tokenKey(token), raw, s.ttl).Err()
}
