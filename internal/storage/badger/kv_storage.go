package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// kvRecord is the badgerhold value stored per key
type kvRecord struct {
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// KVStorage implements the KeyValueStorage interface for Badger
type KVStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *BadgerDB, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

// Keys are case-sensitive: document ids embed uuids and owner ids verbatim
func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}

// Get retrieves a value by key
func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	var record kvRecord
	err := s.db.Store().Get(normalizeKey(key), &record)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return "", interfaces.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}

	return record.Value, nil
}

// Set inserts or replaces a value, preserving the original CreatedAt
func (s *KVStorage) Set(ctx context.Context, key string, value string) error {
	normalized := normalizeKey(key)
	if normalized == "" {
		return fmt.Errorf("key must not be empty")
	}

	now := time.Now()
	record := kvRecord{
		Key:       normalized,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var existing kvRecord
	if err := s.db.Store().Get(normalized, &existing); err == nil {
		record.CreatedAt = existing.CreatedAt
	}

	if err := s.db.Store().Upsert(normalized, &record); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}

	return nil
}

// Delete removes a key
func (s *KVStorage) Delete(ctx context.Context, key string) error {
	err := s.db.Store().Delete(normalizeKey(key), &kvRecord{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// ListKeys returns keys starting with prefix, sorted ascending
func (s *KVStorage) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var records []kvRecord
	query := badgerhold.Where("Key").HasPrefix(prefix).SortBy("Key")
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix %q: %w", prefix, err)
	}

	keys := make([]string, 0, len(records))
	for _, record := range records {
		keys = append(keys, record.Key)
	}
	return keys, nil
}
