// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package db

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/VA7DBI/scribeAPI/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnString(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Database.Host = "db"
	cfg.Database.User = "scribe"
	cfg.Database.Password = "pw"
	cfg.Database.DBName = "scribe"

	assert.Equal(t, "host=db port=5432 user=scribe password=pw dbname=scribe sslmode=disable", ConnString(cfg))

	cfg.Database.URL = "postgres://scribe@db/scribe"
	assert.Equal(t, "postgres://scribe@db/scribe", ConnString(cfg))
}

func TestSchemaDefinesUsageTrigger(t *testing.T) {
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS consultations",
		"UNIQUE (user_id, period_start)",
		"AFTER INSERT OR UPDATE OF duration_seconds ON consultations",
		"IF delta <= 0 THEN",
	} {
		assert.Contains(t, Schema, want)
	}
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	plans := []config.Plan{{Name: "free", MonthlyMinutes: 30}, {Name: "basic", MonthlyMinutes: 300}}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS plans")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO plans").WithArgs("free", 30).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO plans").WithArgs("basic", 300).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), db, plans))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateSchemaError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	err = Migrate(context.Background(), db, nil)
	assert.ErrorContains(t, err, "failed to apply schema")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateSeedRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO plans").WithArgs("free", 30).WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err = Migrate(context.Background(), db, []config.Plan{{Name: "free", MonthlyMinutes: 30}})
	assert.ErrorContains(t, err, `seed plan "free"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
