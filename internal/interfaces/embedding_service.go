package interfaces

import "context"

// EmbeddingService turns text into a fixed-dimension vector using a remote model.
//
// Implementations make exactly one outbound call per Embed and never retry.
// Errors are typed:
//   - *ConfigurationError when the endpoint or credentials are unset
//   - *UpstreamError when the remote call fails or returns a non-success status
//   - *ValidationError when text is empty
type EmbeddingService interface {
	// Embed generates an embedding vector for the given text.
	//
	// Parameters:
	//   - ctx: Context for cancellation; cancelling aborts the outbound call
	//   - text: Input text to embed
	//
	// Returns:
	//   - []float32: embedding vector in the model's output dimension
	//   - error: typed error as described above
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelName returns the embedding model identifier
	ModelName() string
}
