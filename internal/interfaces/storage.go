package interfaces

import (
	"context"
	"io"

	"github.com/ternarybob/ragstream/internal/models"
)

// DocumentStorage is the typed corpus layer over KeyValueStorage.
// Documents and their embeddings are stored under separate keys sharing the document id.
type DocumentStorage interface {
	// SaveDocument writes document metadata at its id
	SaveDocument(ctx context.Context, doc *models.Document) error

	// GetDocument returns ErrKeyNotFound when no metadata exists for id
	GetDocument(ctx context.Context, id string) (*models.Document, error)

	// ListDocuments returns every document whose id starts with prefix
	ListDocuments(ctx context.Context, prefix string) ([]*models.Document, error)

	// DeleteDocument removes document metadata, returns ErrKeyNotFound if absent
	DeleteDocument(ctx context.Context, id string) error

	// SaveEmbedding writes the vector for a document at emb:{id}
	SaveEmbedding(ctx context.Context, record *models.EmbeddingRecord) error

	// ScanEmbeddings calls fn for each embedding record under prefix, one at a time,
	// in ascending key order. Returning an error from fn stops the scan.
	ScanEmbeddings(ctx context.Context, prefix string, fn func(*models.EmbeddingRecord) error) error

	// SaveFile writes raw file metadata at its id
	SaveFile(ctx context.Context, file *models.FileRecord) error

	// ListFiles returns every file record whose id starts with prefix
	ListFiles(ctx context.Context, prefix string) ([]*models.FileRecord, error)
}

// BlobStorage holds raw uploaded bytes
type BlobStorage interface {
	// Put stores the bytes read from r under key and returns the number of bytes written
	Put(ctx context.Context, key string, r io.Reader) (int64, error)

	// Open returns a reader for a stored blob, ErrKeyNotFound if absent
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Compactor is implemented by backends that need periodic space reclamation
type Compactor interface {
	Compact(ctx context.Context) error
}

// StorageManager owns the storage backend and the layers built over it
type StorageManager interface {
	KeyValueStorage() KeyValueStorage
	DocumentStorage() DocumentStorage
	BlobStorage() BlobStorage

	// LoadAPIKeysFromFile provisions API key records from a TOML file
	LoadAPIKeysFromFile(ctx context.Context, path string) error

	Close() error
}
