// Package filesystem stores raw uploaded bytes under a local directory
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/interfaces"
)

// BlobStorage writes each blob to a file whose path is derived from its key
type BlobStorage struct {
	root   string
	logger arbor.ILogger
}

// NewBlobStorage creates the root directory if needed
func NewBlobStorage(root string, logger arbor.ILogger) (*BlobStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create attachments directory: %w", err)
	}
	return &BlobStorage{root: root, logger: logger}, nil
}

// Put writes to a temp file then renames so readers never see a partial blob
func (b *BlobStorage) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	path, err := b.pathFor(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write blob %s: %w", key, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to commit blob %s: %w", key, err)
	}

	b.logger.Debug().Str("key", key).Int64("bytes", n).Msg("Blob stored")
	return n, nil
}

func (b *BlobStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := b.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", key, err)
	}
	return f, nil
}

// pathFor maps file:{owner}/{name} to {root}/{owner}/{name} and refuses keys that escape root
func (b *BlobStorage) pathFor(key string) (string, error) {
	rel := strings.TrimPrefix(key, "file:")
	rel = filepath.Clean(filepath.FromSlash(rel))
	if rel == "." || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(b.root, rel), nil
}
