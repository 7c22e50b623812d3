// Package memory provides a process-local KeyValueStorage used for tests and ephemeral deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/ragstream/internal/interfaces"
)

// KVStorage is a map guarded by a RWMutex
type KVStorage struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewKVStorage creates an empty store
func NewKVStorage() *KVStorage {
	return &KVStorage{data: make(map[string]string)}
}

func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return "", interfaces.ErrKeyNotFound
	}
	return value, nil
}

func (s *KVStorage) Set(ctx context.Context, key string, value string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}

func (s *KVStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return interfaces.ErrKeyNotFound
	}
	delete(s.data, key)
	return nil
}

// ListKeys returns a sorted snapshot of matching keys
func (s *KVStorage) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}
