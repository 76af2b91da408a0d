// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresTokenStore looks up long-lived API tokens. The query takes the
// token as $1 and returns user_id and role.
type PostgresTokenStore struct {
	db    *sql.DB
	query string
}

func NewPostgresTokenStore(db *sql.DB, query string) *PostgresTokenStore {
	return &PostgresTokenStore{db: db, query: query}
}

func (s *PostgresTokenStore) ValidateToken(ctx context.Context, token string) (*Identity, error) {
	var id Identity
	err := s.db.QueryRowContext(ctx, s.query, token).Scan(&id.UserID, &id.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if id.Role == "" {
		id.Role = RoleClinician
	}
	return &id, nil
}

// CacheToken is a no-op for PostgreSQL as it doesn't need caching
func (s *PostgresTokenStore) CacheToken(context.Context, string, *Identity) error {
	return nil
}
