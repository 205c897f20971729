package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const createSettingsTable = `CREATE TABLE IF NOT EXISTS settings (
	scope TEXT NOT NULL,
	name  TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (scope, name)
)`

// SQLBackend stores settings in a single table. Both sqlite3 and postgres accept
// the upsert form used here; only placeholders differ.
type SQLBackend struct {
	db     *sql.DB
	driver string
}

// OpenSQLBackend opens a database with driver ("sqlite3" or "postgres") and
// creates the settings table
func OpenSQLBackend(ctx context.Context, driver, dsn string) (*SQLBackend, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	if driver == "sqlite3" {
		// sqlite serializes writers anyway and :memory: is per connection
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to settings database: %w", err)
	}

	backend := NewSQLBackend(db, driver)
	if err := backend.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return backend, nil
}

// NewSQLBackend wraps an existing connection pool
func NewSQLBackend(db *sql.DB, driver string) *SQLBackend {
	return &SQLBackend{db: db, driver: driver}
}

// DB exposes the underlying pool for health checks
func (s *SQLBackend) DB() *sql.DB {
	return s.db
}

// Migrate creates the settings table when missing
func (s *SQLBackend) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createSettingsTable); err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres
func (s *SQLBackend) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLBackend) Get(ctx context.Context, scope, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT value FROM settings WHERE scope = ? AND name = ?`), scope, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s/%s: %w", scope, key, err)
	}
	return value, true, nil
}

func (s *SQLBackend) Put(ctx context.Context, scope, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO settings (scope, name, value) VALUES (?, ?, ?)
		ON CONFLICT (scope, name) DO UPDATE SET value = excluded.value`), scope, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s/%s: %w", scope, key, err)
	}
	return nil
}

func (s *SQLBackend) Delete(ctx context.Context, scope, key string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM settings WHERE scope = ? AND name = ?`), scope, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s/%s: %w", scope, key, err)
	}
	return nil
}

func (s *SQLBackend) Keys(ctx context.Context, scope string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT name FROM settings WHERE scope = ? ORDER BY name`), scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings in %s: %w", scope, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan setting name: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLBackend) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLBackend) Close() error {
	return s.db.Close()
}
