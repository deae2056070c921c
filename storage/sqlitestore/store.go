// Package sqlitestore keeps storefront client state in a local SQLite file.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	storeerrors "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/storage"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

var _ storage.Repo = (*Store)(nil)

// Store is a storage.Repo over a single key/value table.
type Store struct {
	sqlDB   *sql.DB
	nowTime func() time.Time
}

// Open opens (creating if needed) the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, nowTime: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", storeerrors.Wrapf(storeerrors.ErrNotFound, "get %q", key)
	}
	if err != nil {
		return "", storeerrors.Wrapf(storeerrors.ErrStorage, "get %q: %v", key, err)
	}
	return value, nil
}

// Set writes inside a transaction so a failed write leaves the previous value intact.
func (s *Store) Set(ctx context.Context, key, value string) (returnErr error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storeerrors.Wrapf(storeerrors.ErrStorage, "begin %q: %v", key, err)
	}
	defer func() {
		if returnErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.nowTime().UTC().UnixMilli(),
	); err != nil {
		return storeerrors.Wrapf(storeerrors.ErrStorage, "set %q: %v", key, err)
	}
	if err := tx.Commit(); err != nil {
		return storeerrors.Wrapf(storeerrors.ErrStorage, "commit %q: %v", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return storeerrors.Wrapf(storeerrors.ErrStorage, "delete %q: %v", key, err)
	}
	return nil
}
