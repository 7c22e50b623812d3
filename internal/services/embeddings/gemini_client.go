package embeddings

import (
	"context"
	"fmt"

	"github.com/ternarybob/ragstream/internal/interfaces"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no embedding model is configured for the gemini provider
const DefaultGeminiModel = "gemini-embedding-001"

// GeminiClient embeds text with the Gemini API
type GeminiClient struct {
	client     *genai.Client
	model      string
	dimensions int32
	limiter    *rate.Limiter
}

// NewGeminiClient creates the genai client. A missing API key is reported on first Embed.
func NewGeminiClient(ctx context.Context, apiKey, model string, dimensions int32, requestsPerSecond float64) (*GeminiClient, error) {
	if model == "" || model == DefaultModel {
		model = DefaultGeminiModel
	}

	c := &GeminiClient{model: model, dimensions: dimensions}
	if requestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}

	if apiKey == "" {
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	c.client = client

	return c, nil
}

// Embed makes exactly one EmbedContent call
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.client == nil {
		return nil, &interfaces.ConfigurationError{Component: "embeddings", Missing: "gemini api key"}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding rate limiter: %w", err)
		}
	}

	config := &genai.EmbedContentConfig{}
	if c.dimensions > 0 {
		config.OutputDimensionality = genai.Ptr(c.dimensions)
	}

	result, err := c.client.Models.EmbedContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, config)
	if err != nil {
		return nil, &interfaces.UpstreamError{Service: "embeddings", Err: err}
	}

	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, &interfaces.UpstreamError{Service: "embeddings", Err: fmt.Errorf("no embedding returned")}
	}

	return result.Embeddings[0].Values, nil
}

// Model returns the embedding model name
func (c *GeminiClient) Model() string {
	return c.model
}
