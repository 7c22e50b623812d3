package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/common"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
	"github.com/ternarybob/ragstream/internal/services/extract"
	"github.com/ternarybob/ragstream/internal/services/moderation"
	"github.com/ternarybob/ragstream/internal/services/search"
	"github.com/ternarybob/ragstream/internal/storage/corpus"
	"github.com/ternarybob/ragstream/internal/storage/filesystem"
	"github.com/ternarybob/ragstream/internal/storage/memory"
)

type mockEmbeddings struct {
	mu     sync.Mutex
	err    error
	vector []float32
	texts  []string
}

func (m *mockEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	if m.err != nil {
		return nil, m.err
	}
	if m.vector != nil {
		return m.vector, nil
	}
	return []float32{float32(len(text)), 1}, nil
}

func (m *mockEmbeddings) ModelName() string { return "mock" }

type fixture struct {
	service    *Service
	kv         *memory.KVStorage
	storage    *corpus.DocumentStorage
	blobs      *filesystem.BlobStorage
	embeddings *mockEmbeddings
}

func newFixture(t *testing.T, options Options) *fixture {
	t.Helper()
	logger := arbor.NewLogger()

	kv := memory.NewKVStorage()
	storage := corpus.NewDocumentStorage(kv, logger)
	blobs, err := filesystem.NewBlobStorage(t.TempDir(), logger)
	require.NoError(t, err)
	embeddings := &mockEmbeddings{}

	service := NewService(storage, blobs, embeddings, moderation.NewService(nil, logger), extract.NewService(logger), options, logger)
	return &fixture{service: service, kv: kv, storage: storage, blobs: blobs, embeddings: embeddings}
}

var alice = models.Caller{UserID: "alice"}

func TestIngestText(t *testing.T) {
	f := newFixture(t, Options{SnippetLength: 5})
	ctx := context.Background()

	id, err := f.service.IngestText(ctx, alice, "", "héllo wörld")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, common.OwnerDocumentPrefix("alice")))

	doc, err := f.storage.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, doc.Title)
	assert.Equal(t, "alice", doc.OwnerID)
	assert.Equal(t, "héllo", doc.TextSnippet)
	assert.Positive(t, doc.CreatedAt)

	raw, err := f.kv.Get(ctx, common.EmbeddingKey(id))
	require.NoError(t, err)
	assert.Contains(t, raw, `"embedding":[`)
}

func TestIngestText_NothingWrittenOnFailure(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.service.IngestText(ctx, alice, "t", "   ")
	var validation *interfaces.ValidationError
	assert.True(t, errors.As(err, &validation))
	assert.Equal(t, "Missing text", err.Error())

	_, err = f.service.IngestText(ctx, alice, "t", "my password is hunter2")
	var rejection *interfaces.ModerationRejection
	assert.True(t, errors.As(err, &rejection))
	assert.Empty(t, f.embeddings.texts, "moderation runs before embedding")

	f.embeddings.err = &interfaces.UpstreamError{Service: "embeddings", StatusCode: 503}
	_, err = f.service.IngestText(ctx, alice, "t", "fine text")
	assert.True(t, interfaces.IsUpstreamError(err))

	keys, err := f.kv.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = f.service.IngestText(ctx, models.Caller{UserID: "bad:owner"}, "t", "text")
	assert.True(t, errors.As(err, &validation))
}

func TestIngestText_EmbeddingWriteFailureRemovesDocument(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	// An empty vector is refused by the embedding write
	f.embeddings.vector = []float32{}

	_, err := f.service.IngestText(ctx, alice, "t", "fine text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save embedding")

	docs, err := f.storage.ListDocuments(ctx, common.OwnerDocumentPrefix("alice"))
	require.NoError(t, err)
	assert.Empty(t, docs)

	keys, err := f.kv.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestIngestText_RetrievableByOwnEmbedding(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.embeddings.vector = []float32{0, 1, 0}
	_, err := f.service.IngestText(ctx, alice, "other", "unrelated text")
	require.NoError(t, err)

	text := strings.Repeat("ä", 150) + strings.Repeat("b", 150)
	f.embeddings.vector = []float32{0.3, 0.2, 0.9}
	id, err := f.service.IngestText(ctx, alice, "target", text)
	require.NoError(t, err)

	results, err := search.NewService(f.storage, false, arbor.NewLogger()).
		RetrieveSimilar(ctx, "alice", []float32{0.3, 0.2, 0.9}, 4)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, id, results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	require.NotNil(t, results[0].Metadata)
	assert.Equal(t, "target", results[0].Metadata.Title)
	assert.Equal(t, strings.Repeat("ä", 150)+strings.Repeat("b", 50), results[0].Metadata.TextSnippet)
}

func TestSaveFile_Binary(t *testing.T) {
	f := newFixture(t, Options{IngestTextFiles: true})
	ctx := context.Background()

	record, err := f.service.SaveFile(ctx, alice, "../../etc/report.pdf", "application/pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", record.Filename)
	assert.True(t, strings.HasPrefix(record.ID, "file:alice/"))
	assert.True(t, strings.HasSuffix(record.ID, "-report.pdf"))
	assert.Equal(t, int64(8), record.Size)
	assert.Empty(t, record.DocumentIDs)
	assert.Empty(t, f.embeddings.texts)

	blob, err := f.blobs.Open(ctx, record.ID)
	require.NoError(t, err)
	defer blob.Close()
	data, err := io.ReadAll(blob)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	_, err = f.service.SaveFile(ctx, alice, "  ", "", strings.NewReader("x"))
	var validation *interfaces.ValidationError
	assert.True(t, errors.As(err, &validation))
}

func TestSaveFile_TextIsChunked(t *testing.T) {
	f := newFixture(t, Options{IngestTextFiles: true, ChunkSize: 10})
	ctx := context.Background()

	record, err := f.service.SaveFile(ctx, alice, "notes.txt", "text/plain", strings.NewReader("0123456789abcdefghijXYZ"))
	require.NoError(t, err)
	require.Len(t, record.DocumentIDs, 3)
	assert.Equal(t, []string{"0123456789", "abcdefghij", "XYZ"}, f.embeddings.texts)

	doc, err := f.storage.GetDocument(ctx, record.DocumentIDs[2])
	require.NoError(t, err)
	assert.Equal(t, "notes.txt - chunk 2", doc.Title)
}

func TestSaveFile_ParallelChunksKeepOrder(t *testing.T) {
	f := newFixture(t, Options{IngestTextFiles: true, ChunkSize: 4, IngestWorkers: 4})
	ctx := context.Background()

	text := strings.Repeat("abcd", 12)
	record, err := f.service.SaveFile(ctx, alice, "notes.txt", "text/plain", strings.NewReader(text))
	require.NoError(t, err)
	require.Len(t, record.DocumentIDs, 12)
	assert.Len(t, f.embeddings.texts, 12)

	for i, id := range record.DocumentIDs {
		doc, err := f.storage.GetDocument(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("notes.txt - chunk %d", i), doc.Title)
	}
}

func TestSaveFile_ChunkFailuresAreNotFatal(t *testing.T) {
	f := newFixture(t, Options{IngestTextFiles: true})
	f.embeddings.err = errors.New("embedding backend down")

	record, err := f.service.SaveFile(context.Background(), alice, "notes.md", "text/markdown", strings.NewReader("# hi"))
	require.NoError(t, err)
	assert.Empty(t, record.DocumentIDs)
}

func TestList(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	id, err := f.service.IngestText(ctx, alice, "mine", "alice text")
	require.NoError(t, err)
	_, err = f.service.IngestText(ctx, models.Caller{UserID: "bob"}, "theirs", "bob text")
	require.NoError(t, err)
	file, err := f.service.SaveFile(ctx, alice, "a.bin", "", strings.NewReader("xyz"))
	require.NoError(t, err)

	entries, err := f.service.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	doc, ok := entries[0].(*models.Document)
	require.True(t, ok, "documents are listed first")
	assert.Equal(t, id, doc.ID)

	rec, ok := entries[1].(*models.FileRecord)
	require.True(t, ok)
	assert.Equal(t, file.ID, rec.ID)
}
