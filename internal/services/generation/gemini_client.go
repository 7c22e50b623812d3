package generation

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/common"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when the configured model is the HTTP default
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient streams completions from the Gemini API
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	limiter     *rate.Limiter
	logger      arbor.ILogger
}

// NewGeminiClient creates the genai client. A missing API key is reported on first Stream.
func NewGeminiClient(ctx context.Context, config *common.GenerationConfig, logger arbor.ILogger) (*GeminiClient, error) {
	model := config.Model
	if model == "" || model == DefaultModel {
		model = DefaultGeminiModel
	}

	c := &GeminiClient{
		model:       model,
		temperature: config.Temperature,
		maxTokens:   int32(config.MaxTokens),
		logger:      logger,
	}
	if config.RateLimit > 0 {
		c.limiter = newLimiter(config.RateLimit)
	}

	if config.APIKey == "" {
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	c.client = client

	return c, nil
}

// Stream pulls the first chunk synchronously so request failures are returned as errors
func (c *GeminiClient) Stream(ctx context.Context, messages []models.ChatMessage) (io.ReadCloser, error) {
	if c.client == nil {
		return nil, &interfaces.ConfigurationError{Component: "generation", Missing: "gemini api key"}
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

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if c.maxTokens > 0 {
		config.MaxOutputTokens = c.maxTokens
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	next, stop := iter.Pull2(c.client.Models.GenerateContentStream(streamCtx, c.model, toGeminiContents(turns), config))

	first, err, ok := next()
	if ok && err != nil {
		stop()
		cancel()
		return nil, &interfaces.UpstreamError{Service: "chat", Err: err}
	}

	c.logger.Debug().Str("model", c.model).Int("messages", len(turns)).Msg("Gemini stream opened")

	return startPipe(streamCtx, cancel, c.logger, "geminiStream", func(ctx context.Context, w io.Writer) error {
		defer stop()

		for resp := first; ok; resp, err, ok = next() {
			if err != nil {
				return err
			}
			if resp == nil {
				continue
			}
			if text := resp.Text(); text != "" {
				if err := writeTextFrame(w, text); err != nil {
					return err
				}
			}
		}

		_, err := io.WriteString(w, DoneFrame)
		return err
	}), nil
}

func toGeminiContents(turns []models.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, msg := range turns {
		role := genai.RoleUser
		if msg.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}
	return contents
}

// Name returns the provider name
func (c *GeminiClient) Name() string {
	return "gemini"
}
