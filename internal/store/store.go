// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store persists routing decision records and answers the aggregate
// queries used by reporting. SQLite (mattn/go-sqlite3) and PostgreSQL
// (pgx stdlib) are supported through database/sql.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
	log "github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned when a decision record does not exist.
	ErrNotFound = errors.New("store: decision not found")
	// ErrOutcomeRecorded is returned when an outcome was already attached to the record.
	ErrOutcomeRecorded = errors.New("store: outcome already recorded")
)

const (
	// DriverSQLite is the database/sql driver name for SQLite.
	DriverSQLite = "sqlite3"
	// DriverPostgres is the database/sql driver name for PostgreSQL.
	DriverPostgres = "pgx"
)

// Store is a database/sql backed decision store.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database, verifies the connection and creates the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// SQLite works best with a single connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := New(db, driver)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Infof("Decision store ready (driver: %s)", driver)
	return s, nil
}

// New wraps an existing handle. The schema is not touched.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *Store) schema() []string {
	floatType, bigintType := "REAL", "INTEGER"
	if s.driver == DriverPostgres {
		floatType, bigintType = "DOUBLE PRECISION", "BIGINT"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS routing_decisions (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			account_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL,
			conversation_turn INTEGER NOT NULL DEFAULT 0,
			selected_model TEXT NOT NULL,
			tier TEXT NOT NULL,
			score INTEGER NOT NULL,
			confidence ` + floatType + ` NOT NULL,
			reasoning TEXT NOT NULL DEFAULT '',
			routing_time_ms ` + floatType + ` NOT NULL,
			query_length INTEGER NOT NULL,
			matched_signals TEXT NOT NULL DEFAULT '',
			thresholds_version TEXT NOT NULL DEFAULT '',
			request_succeeded BOOLEAN,
			response_tokens ` + bigintType + `,
			estimated_cost_millicents ` + bigintType + `,
			outcome_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS routing_overrides (
			decision_id TEXT NOT NULL REFERENCES routing_decisions(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			type TEXT NOT NULL,
			PRIMARY KEY (decision_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_routing_decisions_account_created ON routing_decisions(account_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_routing_decisions_created ON routing_decisions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_routing_overrides_type ON routing_overrides(type)`,
	}
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
