// Package search ranks a corpus by cosine similarity to a query embedding.
// Every candidate is scored on each call; there is no index.
package search

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/common"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
	"github.com/ternarybob/ragstream/internal/services/vector"
)

// Service implements interfaces.SearchService with a linear scan
type Service struct {
	documents    interfaces.DocumentStorage
	sharedCorpus bool
	logger       arbor.ILogger
}

// NewService creates a search service. With sharedCorpus set, every owner's
// embeddings are candidates; otherwise a scan is restricted to the caller.
func NewService(documents interfaces.DocumentStorage, sharedCorpus bool, logger arbor.ILogger) *Service {
	return &Service{
		documents:    documents,
		sharedCorpus: sharedCorpus,
		logger:       logger,
	}
}

type scored struct {
	id    string
	score float64
}

// RetrieveSimilar returns the k best matches in non-increasing score order.
// Equal scores keep store enumeration order.
func (s *Service) RetrieveSimilar(ctx context.Context, ownerID string, query []float32, k int) ([]models.SimilarityResult, error) {
	if k <= 0 {
		return []models.SimilarityResult{}, nil
	}

	prefix := common.OwnerEmbeddingPrefix(ownerID)
	if s.sharedCorpus {
		prefix = common.EmbeddingKeyPrefix
	}

	start := time.Now()
	var candidates []scored
	skipped := 0

	err := s.documents.ScanEmbeddings(ctx, prefix, func(record *models.EmbeddingRecord) error {
		score, err := vector.Cosine(query, record.Vector)
		if errors.Is(err, vector.ErrDimensionMismatch) {
			skipped++
			s.logger.Warn().
				Str("id", record.ID).
				Int("expected", len(query)).
				Int("actual", len(record.Vector)).
				Msg("Skipping embedding with mismatched dimension")
			return nil
		}
		if err != nil {
			return err
		}
		candidates = append(candidates, scored{id: record.ID, score: score})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]models.SimilarityResult, 0, len(candidates))
	for _, c := range candidates {
		result := models.SimilarityResult{ID: c.id, Score: c.score}

		doc, err := s.documents.GetDocument(ctx, c.id)
		switch {
		case err == nil:
			result.Metadata = doc
		case errors.Is(err, interfaces.ErrKeyNotFound):
		default:
			s.logger.Warn().Err(err).Str("id", c.id).Msg("Failed to load document metadata")
		}

		results = append(results, result)
	}

	s.logger.Debug().
		Str("prefix", prefix).
		Int("returned", len(results)).
		Int("skipped", skipped).
		Dur("duration", time.Since(start)).
		Msg("Similarity scan complete")

	return results, nil
}
