package generation

import (
	"context"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/common"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
	"golang.org/x/time/rate"
)

// DefaultClaudeModel is used when the configured model is the HTTP default
const DefaultClaudeModel = "claude-haiku-4-5"

// ClaudeClient streams completions from the Anthropic Messages API
type ClaudeClient struct {
	client      *anthropic.Client
	model       string
	maxTokens   int64
	temperature float32
	limiter     *rate.Limiter
	logger      arbor.ILogger
}

// NewClaudeClient creates the client. A missing API key is reported on first Stream.
func NewClaudeClient(config *common.GenerationConfig, logger arbor.ILogger) *ClaudeClient {
	model := config.Model
	if model == "" || model == DefaultModel {
		model = DefaultClaudeModel
	}

	c := &ClaudeClient{
		model:       model,
		maxTokens:   int64(config.MaxTokens),
		temperature: config.Temperature,
		logger:      logger,
	}
	if c.maxTokens <= 0 {
		c.maxTokens = 1024
	}
	if config.RateLimit > 0 {
		c.limiter = newLimiter(config.RateLimit)
	}

	if config.APIKey != "" {
		client := anthropic.NewClient(option.WithAPIKey(config.APIKey))
		c.client = &client
	}

	return c
}

// Stream opens a streaming message. The first event is read before returning so
// request failures surface as errors rather than as a broken stream.
func (c *ClaudeClient) Stream(ctx context.Context, messages []models.ChatMessage) (io.ReadCloser, error) {
	if c.client == nil {
		return nil, &interfaces.ConfigurationError{Component: "generation", Missing: "anthropic api key"}
	}

	system, turns, err := splitSystem(messages)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  toClaudeMessages(turns),
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.temperature))
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream := c.client.Messages.NewStreaming(streamCtx, params)

	hasEvent := stream.Next()
	if !hasEvent {
		if err := stream.Err(); err != nil {
			stream.Close()
			cancel()
			return nil, &interfaces.UpstreamError{Service: "chat", Err: err}
		}
	}

	c.logger.Debug().Str("model", c.model).Int("messages", len(turns)).Msg("Claude stream opened")

	return startPipe(streamCtx, cancel, c.logger, "claudeStream", func(ctx context.Context, w io.Writer) error {
		return relayClaude(stream, hasEvent, w)
	}), nil
}

// relayClaude writes text deltas starting from the already-read current event.
// An empty stream produces only the done frame.
func relayClaude(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], hasEvent bool, w io.Writer) error {
	defer stream.Close()

	for ; hasEvent; hasEvent = stream.Next() {
		delta, isDelta := stream.Current().AsAny().(anthropic.ContentBlockDeltaEvent)
		if !isDelta {
			continue
		}
		if text, isText := delta.Delta.AsAny().(anthropic.TextDelta); isText && text.Text != "" {
			if err := writeTextFrame(w, text.Text); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}

	_, err := io.WriteString(w, DoneFrame)
	return err
}

func toClaudeMessages(turns []models.ChatMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, msg := range turns {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

// Name returns the provider name
func (c *ClaudeClient) Name() string {
	return "claude"
}
