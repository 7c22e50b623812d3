package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the effective providers
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("Ragstream", GetVersion())

	logger.Info().
		Str("version", GetVersion()).
		Str("storage", config.Storage.Type).
		Str("embeddings", config.Embeddings.Provider).
		Str("generation", config.Generation.Provider).
		Int("history_budget", config.Chat.MaxHistoryTokens).
		Int("top_k", config.Retrieval.TopK).
		Msg("Ragstream configured")
}
