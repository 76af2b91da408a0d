// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

// Package db opens the PostgreSQL pool shared by the stores and applies the
// embedded schema.
package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/VA7DBI/scribeAPI/config"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var Schema string

const seedPlanQuery = `INSERT INTO plans (name, monthly_minutes) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET monthly_minutes = EXCLUDED.monthly_minutes`

// ConnString returns database.url when set, else a key/value DSN built from
// the individual fields.
func ConnString(cfg *config.Config) string {
	if cfg.Database.URL != "" {
		return cfg.Database.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)
}

func Open(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// Migrate applies the schema and upserts the configured plans. It is safe
// to run on every start.
func Migrate(ctx context.Context, db *sql.DB, plans []config.Plan) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range plans {
		if _, err := tx.ExecContext(ctx, seedPlanQuery, p.Name, p.MonthlyMinutes); err != nil {
			return fmt.Errorf("failed to seed plan %q: %w", p.Name, err)
		}
	}
	return tx.Commit()
}
