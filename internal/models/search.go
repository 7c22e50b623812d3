package models

// SimilarityResult is a ranked hit from a similarity scan. It is never persisted.
type SimilarityResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	// Metadata is nil when the document record is missing from the store
	Metadata *Document `json:"meta"`
}
