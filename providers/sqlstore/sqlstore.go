// Package sqlstore persists fieldcrypt column keys in a SQL table.
//
// Any database/sql driver using "?" placeholders works (SQLite, MySQL).
// OpenSQLite opens a local SQLite file for single-host deployments.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/hengadev/fieldcrypt"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultTable is the name of the table holding keys.
const DefaultTable = "fieldcrypt_keys"

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store implements fieldcrypt.KeyStore on database/sql.
type Store struct {
	db    *sql.DB
	table string
}

var _ fieldcrypt.KeyStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithTable stores keys in table instead of DefaultTable.
func WithTable(table string) Option {
	return func(s *Store) error {
		if !tableNameRe.MatchString(table) {
			return fmt.Errorf("%w: invalid key table name '%s'", fieldcrypt.ErrInvalidConfiguration, table)
		}
		s.table = table
		return nil
	}
}

// New creates a Store on db. Call Migrate once to create the key table.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database is required", fieldcrypt.ErrInvalidConfiguration)
	}
	s := &Store{db: db, table: DefaultTable}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// OpenSQLite opens (creating if needed) a SQLite database at path and checks
// the connection.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory '%s': %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database at '%s': %w", fieldcrypt.ErrKeyStoreUnavailable, path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: database connection test failed for '%s': %w", fieldcrypt.ErrKeyStoreUnavailable, path, err)
	}
	return db, nil
}

// Table returns the name of the key table.
func (s *Store) Table() string {
	return s.table
}

// Migrate creates the key table and its index when missing.
func (s *Store) Migrate(ctx context.Context) error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			table_name VARCHAR(128) NOT NULL,
			field_name VARCHAR(128) NOT NULL,
			key_value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (table_name, field_name)
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: failed to create key table '%s': %w", fieldcrypt.ErrKeyStoreUnavailable, s.table, err)
	}
	return nil
}

// Get returns the key of table.field, or an error wrapping
// fieldcrypt.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, table, field string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT key_value FROM %s WHERE table_name = ? AND field_name = ?`, s.table),
		table, field)
	var key string
	if err := row.Scan(&key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: '%s.%s'", fieldcrypt.ErrKeyNotFound, table, field)
		}
		return "", fmt.Errorf("%w: failed to read key for '%s.%s': %w", fieldcrypt.ErrKeyStoreUnavailable, table, field, err)
	}
	return key, nil
}

// Put inserts or replaces the key of table.field.
func (s *Store) Put(ctx context.Context, table, field, key string) error {
	if table == "" || field == "" {
		return fmt.Errorf("%w: table and field are required", fieldcrypt.ErrInvalidConfiguration)
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", fieldcrypt.ErrKeyStoreUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET key_value = ?, updated_at = ? WHERE table_name = ? AND field_name = ?`, s.table),
		key, now, table, field)
	if err != nil {
		return fmt.Errorf("%w: failed to update key for '%s.%s': %w", fieldcrypt.ErrKeyStoreUnavailable, table, field, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (id, table_name, field_name, key_value, updated_at) VALUES (?, ?, ?, ?, ?)`, s.table),
			uuid.NewString(), table, field, key, now)
		if err != nil {
			return fmt.Errorf("%w: failed to insert key for '%s.%s': %w", fieldcrypt.ErrKeyStoreUnavailable, table, field, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", fieldcrypt.ErrKeyStoreUnavailable, err)
	}
	return nil
}

// Delete removes the key of table.field. Deleting a missing key is not an
// error.
func (s *Store) Delete(ctx context.Context, table, field string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE table_name = ? AND field_name = ?`, s.table),
		table, field)
	if err != nil {
		return fmt.Errorf("%w: failed to delete key for '%s.%s': %w", fieldcrypt.ErrKeyStoreUnavailable, table, field, err)
	}
	return nil
}

// List returns every stored key ordered by table and field.
func (s *Store) List(ctx context.Context) ([]fieldcrypt.KeyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT table_name, field_name, key_value, updated_at FROM %s ORDER BY table_name, field_name`, s.table))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list keys: %w", fieldcrypt.ErrKeyStoreUnavailable, err)
	}
	defer rows.Close()

	var records []fieldcrypt.KeyRecord
	for rows.Next() {
		var r fieldcrypt.KeyRecord
		if err := rows.Scan(&r.Table, &r.Field, &r.Key, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan key row: %w", fieldcrypt.ErrKeyStoreUnavailable, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", fieldcrypt.ErrKeyStoreUnavailable, err)
	}
	return records, nil
}
