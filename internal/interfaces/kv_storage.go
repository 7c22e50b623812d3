package interfaces

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned when a key is not found in the key/value store
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStorage is the durable associative store behind every record.
// Single-key reads and writes are atomic; there are no cross-key transactions,
// so a prefix scan may or may not observe writes that race with it.
type KeyValueStorage interface {
	// Get retrieves a value by key, returns ErrKeyNotFound if absent
	Get(ctx context.Context, key string) (string, error)

	// Set inserts or replaces the value stored at key
	Set(ctx context.Context, key string, value string) error

	// Delete removes a key, returns ErrKeyNotFound if absent
	Delete(ctx context.Context, key string) error

	// ListKeys returns every key starting with prefix in ascending key order.
	// An empty prefix lists the whole store.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}
