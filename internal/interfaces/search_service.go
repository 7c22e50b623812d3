package interfaces

import (
	"context"

	"github.com/ternarybob/ragstream/internal/models"
)

// SearchService ranks stored embeddings by similarity to a query vector
type SearchService interface {
	// RetrieveSimilar returns up to k results in non-increasing score order.
	// The scan is scoped to ownerID's corpus unless the service is configured for a shared corpus.
	RetrieveSimilar(ctx context.Context, ownerID string, query []float32, k int) ([]models.SimilarityResult, error)
}
