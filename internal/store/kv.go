package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Batch is a grouped set of writes applied atomically by Commit.
//
// Within one batch a later Set or Delete of the same key wins.
// The zero value is an empty batch ready for use.
type Batch struct {
	ops   []op
	index map[string]int
}

type op struct {
	key    string
	value  string
	delete bool
}

// Set stages key=value.
func (b *Batch) Set(key, value string) *Batch {
	b.put(op{key: key, value: value})
	return b
}

// Delete stages removal of key.
func (b *Batch) Delete(keys ...string) *Batch {
	for _, k := range keys {
		b.put(op{key: k, delete: true})
	}
	return b
}

// Merge appends other's operations after b's own.
func (b *Batch) Merge(other *Batch) *Batch {
	if other == nil {
		return b
	}
	for _, o := range other.ops {
		b.put(o)
	}
	return b
}

// Len returns the number of distinct keys touched.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Value returns the staged value for key. deleted is true if the key is
// staged for removal; ok is false if the batch does not touch key.
func (b *Batch) Value(key string) (value string, deleted bool, ok bool) {
	if b.index == nil {
		return "", false, false
	}
	i, ok := b.index[key]
	if !ok {
		return "", false, false
	}
	return b.ops[i].value, b.ops[i].delete, true
}

// Keys returns the touched keys in sorted order.
func (b *Batch) Keys() []string {
	keys := make([]string, 0, len(b.ops))
	for _, o := range b.ops {
		keys = append(keys, o.key)
	}
	sort.Strings(keys)
	return keys
}

func (b *Batch) put(o op) {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	if i, ok := b.index[o.key]; ok {
		b.ops[i] = o
		return
	}
	b.index[o.key] = len(b.ops)
	b.ops = append(b.ops, o)
}

// Get returns the value stored under key.
// ok is false if the key is absent.
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// GetMany returns the values for the given keys in one query.
// Absent keys are omitted from the result map.
func (s *Store) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE key IN (`+placeholders+`) ORDER BY key ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("get many: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("get many: scan: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get many: iterate: %w", err)
	}
	return out, nil
}

// Commit applies every operation in b inside a single transaction.
// An empty batch is a no-op.
func (s *Store) Commit(ctx context.Context, b *Batch) error {
	if b == nil || len(b.ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	now := s.now()
	for _, o := range b.ops {
		if o.delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, o.key); err != nil {
				return fmt.Errorf("commit: delete %q: %w", o.key, err)
			}
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, o.key, o.value, now)
		if err != nil {
			return fmt.Errorf("commit: set %q: %w", o.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Dump returns every stored key/value pair. Used by diagnostics.
func (s *Store) Dump(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("dump: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("dump: scan: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func unixMilliNow() int64 {
	return time.Now().UnixMilli()
}
