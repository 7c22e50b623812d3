package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
	"github.com/ternarybob/ragstream/internal/services/history"
)

// DefaultAskPrompt is the system instruction for non-streaming answers
const DefaultAskPrompt = "Answer using the provided context."

// Options tunes the orchestrator
type Options struct {
	TopK             int
	MaxHistoryTokens int
	AskPrompt        string
}

// Service implements interfaces.ChatService
type Service struct {
	embeddings interfaces.EmbeddingService
	search     interfaces.SearchService
	generation interfaces.GenerationService
	moderator  interfaces.Moderator
	validate   *validator.Validate
	options    Options
	logger     arbor.ILogger
}

// NewService creates a new chat orchestrator
func NewService(
	embeddings interfaces.EmbeddingService,
	search interfaces.SearchService,
	generation interfaces.GenerationService,
	moderator interfaces.Moderator,
	options Options,
	logger arbor.ILogger,
) *Service {
	if options.MaxHistoryTokens <= 0 {
		options.MaxHistoryTokens = history.DefaultMaxTokens
	}
	if options.AskPrompt == "" {
		options.AskPrompt = DefaultAskPrompt
	}

	return &Service{
		embeddings: embeddings,
		search:     search,
		generation: generation,
		moderator:  moderator,
		validate:   validator.New(),
		options:    options,
		logger:     logger,
	}
}

// StreamChat validates, moderates, trims, retrieves and relays the generation stream to sink
func (s *Service) StreamChat(ctx context.Context, caller models.Caller, req *models.ChatRequest, sink interfaces.StreamSink) (bool, error) {
	if req == nil {
		return false, interfaces.NewValidationError("request body is required")
	}
	if err := s.validate.Struct(req); err != nil {
		return false, interfaces.NewValidationError("invalid chat request: %v", err)
	}

	for _, msg := range req.Messages {
		if msg.Role != models.RoleUser {
			continue
		}
		if err := s.moderator.Check(msg.Content); err != nil {
			s.logger.Info().Str("user", caller.UserID).Msg("Chat message rejected by moderation")
			return false, err
		}
	}

	// An empty trim is sent as is and skips retrieval
	trimmed := history.Trim(req.Messages, s.options.MaxHistoryTokens)

	messages := trimmed
	if req.ShouldRetrieve() {
		if query, ok := latestUserMessage(trimmed); ok {
			grounding, _, err := s.retrieveContext(ctx, caller.UserID, query, s.options.TopK)
			if err != nil {
				return false, err
			}
			messages = append(grounding, trimmed...)
		}
	}

	s.logger.Debug().
		Str("user", caller.UserID).
		Int("received", len(req.Messages)).
		Int("kept", len(trimmed)).
		Int("sent", len(messages)).
		Msg("Opening generation stream")

	stream, err := s.generation.Stream(ctx, messages)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	return s.relay(ctx, stream, sink)
}

// relay copies upstream bytes to sink until EOF, cancellation or a write failure
func (s *Service) relay(ctx context.Context, stream io.Reader, sink interfaces.StreamSink) (bool, error) {
	start := time.Now()
	started := false
	var relayed int64
	buf := make([]byte, 4096)

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Debug().Int64("bytes", relayed).Msg("Chat stream cancelled by caller")
			return started, err
		}

		n, readErr := stream.Read(buf)
		if n > 0 {
			if _, err := sink.Write(buf[:n]); err != nil {
				return true, fmt.Errorf("failed to relay stream: %w", err)
			}
			sink.Flush()
			started = true
			relayed += int64(n)
		}

		if errors.Is(readErr, io.EOF) {
			s.logger.Debug().
				Int64("bytes", relayed).
				Dur("duration", time.Since(start)).
				Msg("Chat stream complete")
			return started, nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return started, ctx.Err()
			}
			s.logger.Warn().Err(readErr).Int64("bytes", relayed).Msg("Generation stream failed")
			return started, &interfaces.UpstreamError{Service: "chat", Err: readErr}
		}
	}
}

// retrieveContext embeds query and converts the top matches to system messages.
// The best match is placed last so it sits next to the conversation.
// The ids of the documents used are returned best first.
func (s *Service) retrieveContext(ctx context.Context, ownerID, query string, k int) ([]models.ChatMessage, []string, error) {
	vector, err := s.embeddings.Embed(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	results, err := s.search.RetrieveSimilar(ctx, ownerID, vector, k)
	if err != nil {
		return nil, nil, fmt.Errorf("similarity search failed: %w", err)
	}

	grounding := make([]models.ChatMessage, 0, len(results))
	sources := make([]string, 0, len(results))
	for i := len(results) - 1; i >= 0; i-- {
		if msg, ok := contextMessage(results[i]); ok {
			grounding = append(grounding, msg)
			sources = append([]string{results[i].ID}, sources...)
		}
	}

	s.logger.Debug().Int("results", len(results)).Int("context_messages", len(grounding)).Msg("Retrieved context")
	return grounding, sources, nil
}

func contextMessage(result models.SimilarityResult) (models.ChatMessage, bool) {
	if result.Metadata == nil || result.Metadata.TextSnippet == "" {
		return models.ChatMessage{}, false
	}
	return models.ChatMessage{
		Role:    models.RoleSystem,
		Content: fmt.Sprintf("Document(%s) context: %s", result.ID, result.Metadata.TextSnippet),
	}, true
}

func latestUserMessage(messages []models.ChatMessage) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return messages[i].Content, true
		}
	}
	return "", false
}
