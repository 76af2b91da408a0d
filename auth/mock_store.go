// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"sync"
)

// MockTokenStore is an in-memory TokenStore for tests and local runs.
type MockTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]Identity
	Err    error
}

func NewMockTokenStore() *MockTokenStore {
	return &MockTokenStore{
		tokens: make(map[string]Identity),
	}
}

func (m *MockTokenStore) ValidateToken(_ context.Context, token string) (*Identity, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tokens[token]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func (m *MockTokenStore) CacheToken(_ context.Context, token string, id *Identity) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = *id
	return nil
}
