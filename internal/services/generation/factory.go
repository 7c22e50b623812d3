package generation

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/common"
	"github.com/ternarybob/ragstream/internal/interfaces"
)

// NewFromConfig selects the streaming backend named in config
func NewFromConfig(ctx context.Context, config *common.GenerationConfig, logger arbor.ILogger) (interfaces.GenerationService, error) {
	switch config.Provider {
	case "http", "":
		return NewHTTPClient(config.Endpoint, config.APIKey, logger,
			WithModel(config.Model),
			WithRateLimit(config.RateLimit),
		), nil
	case "claude":
		return NewClaudeClient(config, logger), nil
	case "gemini":
		return NewGeminiClient(ctx, config, logger)
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", config.Provider)
	}
}
