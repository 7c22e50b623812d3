package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/common"
	"github.com/ternarybob/ragstream/internal/interfaces"
)

// Provider is a remote embedding backend
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Service implements EmbeddingService over a Provider
type Service struct {
	provider Provider
	logger   arbor.ILogger
}

// NewService creates a new embedding service
func NewService(provider Provider, logger arbor.ILogger) *Service {
	return &Service{
		provider: provider,
		logger:   logger,
	}
}

// NewFromConfig selects the provider named in config
func NewFromConfig(ctx context.Context, config *common.EmbeddingsConfig, logger arbor.ILogger) (*Service, error) {
	switch config.Provider {
	case "gemini":
		provider, err := NewGeminiClient(ctx, config.APIKey, config.Model, config.Dimensions, config.RateLimit)
		if err != nil {
			return nil, err
		}
		return NewService(provider, logger), nil
	case "http", "":
		provider := NewHTTPClient(config.Endpoint, config.APIKey,
			WithModel(config.Model),
			WithRateLimit(config.RateLimit),
		)
		return NewService(provider, logger), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", config.Provider)
	}
}

// Embed creates a vector embedding for text
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, interfaces.NewValidationError("text cannot be empty")
	}

	start := time.Now()
	vector, err := s.provider.Embed(ctx, text)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("model", s.provider.Model()).
			Dur("duration", time.Since(start)).
			Msg("Embedding failed")
		return nil, err
	}

	s.logger.Debug().
		Str("model", s.provider.Model()).
		Int("dimensions", len(vector)).
		Int("text_length", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Generated embedding")

	return vector, nil
}

// ModelName returns the provider's model
func (s *Service) ModelName() string {
	return s.provider.Model()
}
