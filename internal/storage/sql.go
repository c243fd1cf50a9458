package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Dialect selects placeholder syntax for SQLStore.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore keeps the client key-value pairs in a single table. It works on
// SQLite (local file) and PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string

	getQuery    string
	upsertQuery string
	deleteQuery string
}

// NewSQLStore creates the backing table if needed.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect, table string) (*SQLStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid storage table name %q", table)
	}
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect, table: table}
	s.getQuery = fmt.Sprintf(`SELECT storage_value FROM %s WHERE storage_key = %s`, table, s.placeholder(1))
	s.upsertQuery = fmt.Sprintf(
		`INSERT INTO %s (storage_key, storage_value, updated_at) VALUES (%s, %s, %s) `+
			`ON CONFLICT (storage_key) DO UPDATE SET storage_value = excluded.storage_value, updated_at = excluded.updated_at`,
		table, s.placeholder(1), s.placeholder(2), s.placeholder(3),
	)
	s.deleteQuery = fmt.Sprintf(`DELETE FROM %s WHERE storage_key = %s`, table, s.placeholder(1))

	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	storage_key TEXT PRIMARY KEY,
	storage_value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create storage table %s: %w", s.table, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.getQuery, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, s.upsertQuery, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// SetAll writes every entry inside one transaction.
func (s *SQLStore) SetAll(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin storage tx: %w", err)
	}

	now := time.Now().UTC()
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, s.upsertQuery, e.Key, e.Value, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("set %s: %w", e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit storage tx: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if _, err := s.db.ExecContext(ctx, s.deleteQuery, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
