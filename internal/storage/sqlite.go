package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const upsertKV = `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`

// SQLiteBackend stores values in the kv table.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

// DB exposes the underlying handle (used by tests and the CLI).
func (b *SQLiteBackend) DB() *sql.DB { return b.db }

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	row := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key)
	var v []byte
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return v, true, nil
}

func (b *SQLiteBackend) Set(ctx context.Context, key string, value []byte) error {
	if _, err := b.db.ExecContext(ctx, upsertKV, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func (b *SQLiteBackend) Remove(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kv remove %s: %w", key, err)
	}
	return nil
}

func (b *SQLiteBackend) MultiGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	rows, err := b.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("kv multi get: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("kv scan: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kv rows: %w", err)
	}
	return out, nil
}

func (b *SQLiteBackend) MultiSet(ctx context.Context, values map[string][]byte) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(values))
	for k, v := range values {
		rows = append(rows, []any{k, v, now})
	}
	if err := execBatch(ctx, b.db, upsertKV, rows); err != nil {
		return fmt.Errorf("kv multi set: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) MultiRemove(ctx context.Context, keys []string) error {
	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []any{k})
	}
	if err := execBatch(ctx, b.db, `DELETE FROM kv WHERE key = ?`, rows); err != nil {
		return fmt.Errorf("kv multi remove: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Keys(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("kv keys: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("kv keys scan: %w", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kv keys rows: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
