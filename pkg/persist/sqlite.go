package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteBackend keeps entries in a single key/value table. It suits the CLI
// and single-node deployments where Redis is not available.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("persist: sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persist: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	backend, err := NewSQLiteBackend(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return backend, nil
}

// NewSQLiteBackend wraps an open database handle and creates the table.
func NewSQLiteBackend(ctx context.Context, db *sql.DB) (*SQLiteBackend, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("persist: create kv table: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("persist: sqlite get %q: %w", key, err)
	}
	return value, true, nil
}

func (b *SQLiteBackend) Set(ctx context.Context, key string, value []byte) error {
	return b.SetMany(ctx, map[string][]byte{key: value})
}

func (b *SQLiteBackend) SetMany(ctx context.Context, entries map[string][]byte) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist: sqlite begin: %w", err)
	}
	now := time.Now().UnixMilli()
	for key, value := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("persist: sqlite upsert %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist: sqlite commit: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}
	if _, err := b.db.ExecContext(ctx, `DELETE FROM kv WHERE key IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("persist: sqlite delete: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
