// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStoreInterface(t *testing.T) {
	ctx := context.Background()
	var store TokenStore = NewMockTokenStore()

	// Unknown tokens resolve to nothing
	id, err := store.ValidateToken(ctx, "test-token")
	assert.NoError(t, err)
	assert.Nil(t, id)

	err = store.CacheToken(ctx, "test-token", &Identity{UserID: "u1", Role: RoleClinician})
	assert.NoError(t, err)

	id, err = store.ValidateToken(ctx, "test-token")
	assert.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "u1", id.UserID)
	assert.False(t, id.IsAdmin())
}

func TestMockTokenStoreError(t *testing.T) {
	store := NewMockTokenStore()
	store.Err = errors.New("down")
	_, err := store.ValidateToken(context.Background(), "x")
	assert.Error(t, err)
}

func TestStaticTokenStore(t *testing.T) {
	ctx := context.Background()
	store := NewStaticTokenStore([]string{"", "service-secret"})

	id, err := store.ValidateToken(ctx, "service-secret")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.True(t, id.IsAdmin())
	assert.Equal(t, "service-1", id.UserID)

	id, err = store.ValidateToken(ctx, "")
	assert.NoError(t, err)
	assert.Nil(t, id, "empty configured tokens never match")

	id, err = store.ValidateToken(ctx, "service-secre")
	assert.NoError(t, err)
	assert.Nil(t, id)

	var nilID *Identity
	assert.False(t, nilID.IsAdmin())
}
