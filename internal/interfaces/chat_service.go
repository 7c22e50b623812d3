package interfaces

import (
	"context"
	"io"

	"github.com/ternarybob/ragstream/internal/models"
)

// StreamSink receives relayed generation bytes. Flush is called after each write
// so the caller sees output as it arrives.
type StreamSink interface {
	io.Writer
	Flush()
}

// ChatService orchestrates moderation, trimming, retrieval and streaming generation
type ChatService interface {
	// StreamChat runs the chat pipeline and relays the model stream to sink.
	// Errors returned before any byte is written leave sink untouched.
	// Once bytes have been relayed, a failure is reported by the returned error
	// together with started == true so the transport can signal it in-band.
	StreamChat(ctx context.Context, caller models.Caller, req *models.ChatRequest, sink StreamSink) (started bool, err error)

	// Ask answers a single question from the best matching document without streaming
	Ask(ctx context.Context, caller models.Caller, question string) (*models.AskResponse, error)
}

// Moderator screens user-authored text
type Moderator interface {
	// Check returns *ModerationRejection when text matches a blocked term
	Check(text string) error
}
