package interfaces

import (
	"context"
	"io"

	"github.com/ternarybob/ragstream/internal/models"
)

// DocumentService ingests and lists a caller's corpus
type DocumentService interface {
	// IngestText embeds text and persists the document and its embedding, returning the new id.
	// The embedding is computed before anything is written.
	IngestText(ctx context.Context, caller models.Caller, title, text string) (string, error)

	// SaveFile stores raw bytes and their metadata. Text-like files are also
	// extracted and ingested as chunk documents.
	SaveFile(ctx context.Context, caller models.Caller, filename, contentType string, r io.Reader) (*models.FileRecord, error)

	// List returns the caller's documents followed by their file records
	List(ctx context.Context, caller models.Caller) ([]models.ListEntry, error)
}
