package interfaces

import (
	"context"
	"io"

	"github.com/ternarybob/ragstream/internal/models"
)

// GenerationService invokes a remote model in streaming mode.
//
// The returned stream carries server-sent-event bytes ready to relay verbatim.
// Cancelling ctx aborts the outbound call; reads then fail with the context error.
type GenerationService interface {
	// Stream starts a generation over the given conversation.
	//
	// Parameters:
	//   - ctx: Context tied to the inbound request's lifetime
	//   - messages: Assembled conversation in chronological order
	//
	// Returns:
	//   - io.ReadCloser: the response byte stream; the caller must Close it
	//   - error: *ConfigurationError or *UpstreamError if the stream could not start
	Stream(ctx context.Context, messages []models.ChatMessage) (io.ReadCloser, error)

	// Name returns the provider name for logging
	Name() string
}
