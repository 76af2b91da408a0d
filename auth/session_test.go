// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s, err := NewSessions(testSecret, time.Hour)
	require.NoError(t, err)

	token, expires, err := s.Issue(Identity{UserID: "u1", Role: RoleAdmin})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	id, err := s.ValidateToken(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, Identity{UserID: "u1", Role: RoleAdmin}, *id)

	t.Run("Expired", func(t *testing.T) {
		s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { s.now = time.Now }()
		id, err := s.ValidateToken(ctx, token)
		assert.NoError(t, err)
		assert.Nil(t, id)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other, err := NewSessions("ffffffffffffffffffffffffffffffff", time.Hour)
		require.NoError(t, err)
		id, err := other.ValidateToken(ctx, token)
		assert.NoError(t, err)
		assert.Nil(t, id)
	})

	t.Run("OpaqueTokenSkipped", func(t *testing.T) {
		id, err := s.ValidateToken(ctx, "static-token")
		assert.NoError(t, err)
		assert.Nil(t, id)
	})

	t.Run("NoneAlgorithmRejected", func(t *testing.T) {
		claims := jwt.RegisteredClaims{Issuer: sessionIssuer, Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		id, err := s.ValidateToken(ctx, unsigned)
		assert.NoError(t, err)
		assert.Nil(t, id)
	})
}

func TestNewSessionsRejectsShortSecret(t *testing.T) {
	_, err := NewSessions("short", time.Hour)
	assert.Error(t, err)
}
