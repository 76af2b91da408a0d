// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
)

const (
	RoleClinician = "clinician"
	RoleAdmin     = "admin"
)

// Identity is the caller a bearer token resolves to.
type Identity struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// TokenStore defines the basic token operations. ValidateToken returns a nil
// identity and nil error for tokens the store does not know.
type TokenStore interface {
	ValidateToken(ctx context.Context, token string) (*Identity, error)
	CacheToken(ctx context.Context, token string, id *Identity) error
}

// SelfContained marks stores whose tokens carry their own expiry. The auth
// middleware does not cache their hits.
type SelfContained interface {
	SelfContained()
}

// StaticTokenStore accepts the service tokens listed in configuration. They
// carry the admin role.
type StaticTokenStore struct {
	tokens []string
}

func NewStaticTokenStore(tokens []string) *StaticTokenStore {
	return &StaticTokenStore{tokens: tokens}
}

func (s *StaticTokenStore) ValidateToken(_ context.Context, token string) (*Identity, error) {
	for i, t := range s.tokens {
		if t != "" && subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return &Identity{UserID: fmt.Sprintf("service-%d", i), Role: RoleAdmin}, nil
		}
	}
	return nil, nil
}

// CacheToken is a no-op; static tokens live in configuration.
func (s *StaticTokenStore) CacheToken(context.Context, string, *Identity) error {
	return nil
}
