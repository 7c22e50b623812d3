// Package corpus stores documents, embeddings and file records as JSON values in a KeyValueStorage.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/common"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
)

// DocumentStorage implements interfaces.DocumentStorage over any KeyValueStorage
type DocumentStorage struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewDocumentStorage creates a new DocumentStorage instance
func NewDocumentStorage(kv interfaces.KeyValueStorage, logger arbor.ILogger) *DocumentStorage {
	return &DocumentStorage{
		kv:     kv,
		logger: logger,
	}
}

func (s *DocumentStorage) SaveDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	return s.put(ctx, doc.ID, doc)
}

func (s *DocumentStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := s.get(ctx, id, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments skips keys that vanish or fail to decode between listing and reading
func (s *DocumentStorage) ListDocuments(ctx context.Context, prefix string) ([]*models.Document, error) {
	keys, err := s.kv.ListKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	docs := make([]*models.Document, 0, len(keys))
	for _, key := range keys {
		doc, err := s.GetDocument(ctx, key)
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Skipping unreadable document")
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *DocumentStorage) DeleteDocument(ctx context.Context, id string) error {
	return s.kv.Delete(ctx, id)
}

func (s *DocumentStorage) SaveEmbedding(ctx context.Context, record *models.EmbeddingRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("embedding id is required")
	}
	if len(record.Vector) == 0 {
		return fmt.Errorf("embedding vector for %s is empty", record.ID)
	}
	return s.put(ctx, common.EmbeddingKey(record.ID), record)
}

// ScanEmbeddings reads records one at a time in key order
func (s *DocumentStorage) ScanEmbeddings(ctx context.Context, prefix string, fn func(*models.EmbeddingRecord) error) error {
	keys, err := s.kv.ListKeys(ctx, prefix)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}

		var record models.EmbeddingRecord
		err := s.get(ctx, key, &record)
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Skipping unreadable embedding")
			continue
		}

		if err := fn(&record); err != nil {
			return err
		}
	}
	return nil
}

func (s *DocumentStorage) SaveFile(ctx context.Context, file *models.FileRecord) error {
	if file == nil || file.ID == "" {
		return fmt.Errorf("file id is required")
	}
	return s.put(ctx, file.ID, file)
}

// ListFiles falls back to a bare record when metadata cannot be decoded
func (s *DocumentStorage) ListFiles(ctx context.Context, prefix string) ([]*models.FileRecord, error) {
	keys, err := s.kv.ListKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	files := make([]*models.FileRecord, 0, len(keys))
	for _, key := range keys {
		var file models.FileRecord
		err := s.get(ctx, key, &file)
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("File metadata unreadable, listing key only")
			file = models.FileRecord{ID: key, Filename: key}
		}
		files = append(files, &file)
	}
	return files, nil
}

func (s *DocumentStorage) put(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (s *DocumentStorage) get(ctx context.Context, key string, v interface{}) error {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
