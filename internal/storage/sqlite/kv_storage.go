package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/interfaces"
)

// KVStorage implements the KeyValueStorage interface for SQLite
type KVStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex // Serialises writes to avoid SQLITE_BUSY
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a value by key
func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.db.QueryRowContext(ctx, `SELECT value FROM key_value_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", interfaces.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}

	return value, nil
}

// Set inserts or updates a key/value pair
func (s *KVStorage) Set(ctx context.Context, key string, value string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	query := `
		INSERT INTO key_value_store (key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	if _, err := s.db.db.ExecContext(ctx, query, key, value, now, now); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}

	return nil
}

// Delete removes a key/value pair
func (s *KVStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.db.ExecContext(ctx, `DELETE FROM key_value_store WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if rows == 0 {
		return interfaces.ErrKeyNotFound
	}

	return nil
}

// ListKeys returns keys starting with prefix, sorted ascending.
// The prefix is turned into a half-open key range so the primary key index is used.
func (s *KVStorage) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var (
		rows *sql.Rows
		err  error
	)

	upper, bounded := prefixUpperBound(prefix)
	if bounded {
		rows, err = s.db.db.QueryContext(ctx,
			`SELECT key FROM key_value_store WHERE key >= ? AND key < ? ORDER BY key`, prefix, upper)
	} else {
		rows, err = s.db.db.QueryContext(ctx,
			`SELECT key FROM key_value_store WHERE key >= ? ORDER BY key`, prefix)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// prefixUpperBound returns the smallest string greater than every string with the prefix.
// bounded is false when no such string exists (empty prefix or all 0xff bytes).
func prefixUpperBound(prefix string) (upper string, bounded bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}
