package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/common"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
	"github.com/ternarybob/ragstream/internal/services/extract"
	"github.com/ternarybob/ragstream/internal/services/workers"
)

// DefaultTitle is used for JSON uploads that omit a title
const DefaultTitle = "uploaded-text"

// Options controls ingestion
type Options struct {
	SnippetLength   int
	ChunkSize       int
	IngestTextFiles bool
	// IngestWorkers bounds concurrent chunk embeddings per upload
	IngestWorkers int
}

// Service implements interfaces.DocumentService
type Service struct {
	storage          interfaces.DocumentStorage
	blobs            interfaces.BlobStorage
	embeddingService interfaces.EmbeddingService
	moderator        interfaces.Moderator
	extractor        *extract.Service
	options          Options
	logger           arbor.ILogger
}

// NewService creates a new document service
func NewService(
	storage interfaces.DocumentStorage,
	blobs interfaces.BlobStorage,
	embeddingService interfaces.EmbeddingService,
	moderator interfaces.Moderator,
	extractor *extract.Service,
	options Options,
	logger arbor.ILogger,
) *Service {
	if options.SnippetLength <= 0 {
		options.SnippetLength = 200
	}
	if options.ChunkSize <= 0 {
		options.ChunkSize = 1500
	}
	if options.IngestWorkers <= 0 {
		options.IngestWorkers = 1
	}

	return &Service{
		storage:          storage,
		blobs:            blobs,
		embeddingService: embeddingService,
		moderator:        moderator,
		extractor:        extractor,
		options:          options,
		logger:           logger,
	}
}

// IngestText embeds text and stores the document and its embedding.
// Nothing is written if moderation, embedding or the embedding write fails.
func (s *Service) IngestText(ctx context.Context, caller models.Caller, title, text string) (string, error) {
	if err := validOwner(caller.UserID); err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", interfaces.NewValidationError("Missing text")
	}
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}

	if err := s.moderator.Check(text); err != nil {
		return "", err
	}

	vector, err := s.embeddingService.Embed(ctx, text)
	if err != nil {
		return "", err
	}

	doc := &models.Document{
		ID:          common.NewDocumentID(caller.UserID),
		Title:       title,
		OwnerID:     caller.UserID,
		CreatedAt:   time.Now().UnixMilli(),
		TextSnippet: snippet(text, s.options.SnippetLength),
	}

	if err := s.storage.SaveDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to save document: %w", err)
	}
	if err := s.storage.SaveEmbedding(ctx, &models.EmbeddingRecord{ID: doc.ID, Vector: vector}); err != nil {
		if delErr := s.storage.DeleteDocument(ctx, doc.ID); delErr != nil {
			s.logger.Warn().Err(delErr).Str("doc_id", doc.ID).Msg("Failed to remove document without embedding")
		}
		return "", fmt.Errorf("failed to save embedding: %w", err)
	}

	s.logger.Info().
		Str("doc_id", doc.ID).
		Str("title", title).
		Int("dimensions", len(vector)).
		Msg("Document ingested")

	return doc.ID, nil
}

// SaveFile stores raw bytes and a file record. Supported text formats are
// extracted and ingested as chunk documents; chunk failures are logged only.
func (s *Service) SaveFile(ctx context.Context, caller models.Caller, filename, contentType string, r io.Reader) (*models.FileRecord, error) {
	if err := validOwner(caller.UserID); err != nil {
		return nil, err
	}

	name := sanitizeFilename(filename)
	if name == "" {
		return nil, interfaces.NewValidationError("Missing filename")
	}

	record := &models.FileRecord{
		Filename:    name,
		OwnerID:     caller.UserID,
		CreatedAt:   time.Now().UnixMilli(),
		ContentType: contentType,
	}
	record.ID = common.NewFileID(caller.UserID, record.CreatedAt, name)

	_, extractable := extract.FormatFor(name)
	extractable = extractable && s.options.IngestTextFiles && s.extractor != nil

	var data []byte
	if extractable {
		buf, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
		data = buf
		r = bytes.NewReader(buf)
	}

	size, err := s.blobs.Put(ctx, record.ID, r)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}
	record.Size = size

	if extractable {
		record.DocumentIDs = s.ingestChunks(ctx, caller, name, data)
	}

	if err := s.storage.SaveFile(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save file record: %w", err)
	}

	s.logger.Info().
		Str("file_id", record.ID).
		Int64("size", size).
		Int("chunks", len(record.DocumentIDs)).
		Msg("File stored")

	return record, nil
}

func (s *Service) ingestChunks(ctx context.Context, caller models.Caller, filename string, data []byte) []string {
	result, err := s.extractor.Extract(filename, data)
	if err != nil {
		s.logger.Warn().Err(err).Str("filename", filename).Msg("Text extraction failed, file stored without chunks")
		return nil
	}

	chunks := extract.Chunk(result.Text, s.options.ChunkSize)
	ids := make([]string, len(chunks))

	pool := workers.NewPool(ctx, s.options.IngestWorkers, s.logger)
	pool.Start()
	for i, chunk := range chunks {
		i, chunk := i, chunk
		err := pool.Submit(func(ctx context.Context) error {
			title := fmt.Sprintf("%s - chunk %d", filename, i)
			id, err := s.IngestText(ctx, caller, title, chunk)
			if err != nil {
				s.logger.Warn().Err(err).Str("title", title).Msg("Chunk ingestion failed")
				return err
			}
			ids[i] = id
			return nil
		})
		if err != nil {
			break
		}
	}
	pool.Wait()

	if failed := len(pool.Errors()); failed > 0 {
		s.logger.Warn().Int("failed", failed).Int("chunks", len(chunks)).Str("filename", filename).Msg("Some chunks were not ingested")
	}

	// Chunk order is kept; failed chunks leave no id
	ingested := ids[:0]
	for _, id := range ids {
		if id != "" {
			ingested = append(ingested, id)
		}
	}
	if len(ingested) == 0 {
		return nil
	}
	return ingested
}

// List returns the caller's documents followed by their file records
func (s *Service) List(ctx context.Context, caller models.Caller) ([]models.ListEntry, error) {
	if err := validOwner(caller.UserID); err != nil {
		return nil, err
	}

	docs, err := s.storage.ListDocuments(ctx, common.OwnerDocumentPrefix(caller.UserID))
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	files, err := s.storage.ListFiles(ctx, common.OwnerFilePrefix(caller.UserID))
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	entries := make([]models.ListEntry, 0, len(docs)+len(files))
	for _, doc := range docs {
		entries = append(entries, doc)
	}
	for _, file := range files {
		entries = append(entries, file)
	}
	return entries, nil
}

// snippet returns the first n runes of text
func snippet(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

func sanitizeFilename(filename string) string {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

func validOwner(userID string) error {
	if userID == "" || strings.ContainsAny(userID, ":/") {
		return interfaces.NewValidationError("invalid owner id")
	}
	return nil
}
