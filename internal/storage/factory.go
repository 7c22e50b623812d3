package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/common"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/storage/badger"
	"github.com/ternarybob/ragstream/internal/storage/corpus"
	"github.com/ternarybob/ragstream/internal/storage/filesystem"
	"github.com/ternarybob/ragstream/internal/storage/memory"
	"github.com/ternarybob/ragstream/internal/storage/sqlite"
)

// Manager implements interfaces.StorageManager for every backend
type Manager struct {
	kv        interfaces.KeyValueStorage
	documents interfaces.DocumentStorage
	blobs     interfaces.BlobStorage
	closer    io.Closer
	compactor interfaces.Compactor
	logger    arbor.ILogger
}

// NewStorageManager opens the backend named by config.Storage.Type
func NewStorageManager(logger arbor.ILogger, config *common.Config) (*Manager, error) {
	m := &Manager{logger: logger}

	switch config.Storage.Type {
	case "badger", "":
		db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
		if err != nil {
			return nil, err
		}
		m.kv = badger.NewKVStorage(db, logger)
		m.closer = db
		m.compactor = db
	case "sqlite":
		db, err := sqlite.NewSQLiteDB(logger, &config.Storage.SQLite)
		if err != nil {
			return nil, err
		}
		m.kv = sqlite.NewKVStorage(db, logger)
		m.closer = db
		m.compactor = db
	case "memory":
		m.kv = memory.NewKVStorage()
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Storage.Type)
	}

	blobs, err := filesystem.NewBlobStorage(config.Storage.Filesystem.Attachments, logger)
	if err != nil {
		m.Close()
		return nil, err
	}

	m.blobs = blobs
	m.documents = corpus.NewDocumentStorage(m.kv, logger)

	logger.Info().Str("type", config.Storage.Type).Msg("Storage manager initialized")
	return m, nil
}

// NewManagerWithKV wraps an existing KeyValueStorage, used by tests and embedders
func NewManagerWithKV(kv interfaces.KeyValueStorage, blobs interfaces.BlobStorage, logger arbor.ILogger) *Manager {
	return &Manager{
		kv:        kv,
		documents: corpus.NewDocumentStorage(kv, logger),
		blobs:     blobs,
		logger:    logger,
	}
}

// KeyValueStorage returns the raw key/value interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// DocumentStorage returns the typed corpus interface
func (m *Manager) DocumentStorage() interfaces.DocumentStorage {
	return m.documents
}

// BlobStorage returns the raw file store
func (m *Manager) BlobStorage() interfaces.BlobStorage {
	return m.blobs
}

// Compact reclaims space when the backend supports it
func (m *Manager) Compact(ctx context.Context) error {
	if m.compactor == nil {
		return nil
	}
	return m.compactor.Compact(ctx)
}

// Close closes the backend
func (m *Manager) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}
