package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/ragstream/internal/interfaces"
	"golang.org/x/time/rate"
)

// DefaultModel is the embedding model requested from OpenAI-compatible endpoints
const DefaultModel = "text-embedding-3-small"

// HTTPClient calls an OpenAI-compatible embeddings endpoint: POST {endpoint}/embeddings
type HTTPClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOption configures the HTTPClient
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = httpClient
	}
}

// WithModel overrides the requested model
func WithModel(model string) ClientOption {
	return func(c *HTTPClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithRateLimit bounds outbound requests per second. Zero leaves the client unlimited.
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *HTTPClient) {
		if requestsPerSecond > 0 {
			burst := int(requestsPerSecond)
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
		}
	}
}

// NewHTTPClient creates an embeddings client. No timeout is set beyond the transport default.
func NewHTTPClient(endpoint, apiKey string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		model:      DefaultModel,
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed makes exactly one request
func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.endpoint == "" || c.apiKey == "" {
		return nil, &interfaces.ConfigurationError{Component: "embeddings", Missing: "endpoint or api key"}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding rate limiter: %w", err)
		}
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &interfaces.UpstreamError{Service: "embeddings", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &interfaces.UpstreamError{Service: "embeddings", StatusCode: resp.StatusCode}
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &interfaces.UpstreamError{Service: "embeddings", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, &interfaces.UpstreamError{Service: "embeddings", Err: fmt.Errorf("response contained no embedding")}
	}

	vector := make([]float32, len(result.Data[0].Embedding))
	for i, v := range result.Data[0].Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

// Model returns the requested model name
func (c *HTTPClient) Model() string {
	return c.model
}
