// Package generation provides streaming model backends. Every backend returns
// server-sent-event bytes so the chat relay can copy them verbatim.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
	"golang.org/x/time/rate"
)

// DefaultModel is the chat model requested from the HTTP endpoint
const DefaultModel = "gpt-4o-mini"

// HTTPClient posts to {endpoint}/chat/stream and hands back the raw response body
type HTTPClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// HTTPOption configures the HTTPClient
type HTTPOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.httpClient = httpClient
	}
}

// WithModel overrides the requested model
func WithModel(model string) HTTPOption {
	return func(c *HTTPClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithRateLimit bounds outbound requests per second. Zero leaves the client unlimited.
func WithRateLimit(requestsPerSecond float64) HTTPOption {
	return func(c *HTTPClient) {
		if requestsPerSecond > 0 {
			c.limiter = newLimiter(requestsPerSecond)
		}
	}
}

// NewHTTPClient creates a streaming relay client. The HTTP client has no timeout;
// the request context bounds the call.
func NewHTTPClient(endpoint, apiKey string, logger arbor.ILogger, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		model:      DefaultModel,
		httpClient: &http.Client{},
		logger:     logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type streamRequest struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
}

// Stream starts the upstream call. Non-2xx responses become an UpstreamError carrying the body.
func (c *HTTPClient) Stream(ctx context.Context, messages []models.ChatMessage) (io.ReadCloser, error) {
	if c.endpoint == "" || c.apiKey == "" {
		return nil, &interfaces.ConfigurationError{Component: "generation", Missing: "endpoint or api key"}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("generation rate limiter: %w", err)
		}
	}

	body, err := json.Marshal(streamRequest{Model: c.model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &interfaces.UpstreamError{Service: "chat", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &interfaces.UpstreamError{Service: "chat", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}

	c.logger.Debug().
		Str("model", c.model).
		Int("messages", len(messages)).
		Msg("Generation stream opened")

	return resp.Body, nil
}

// Name returns the provider name
func (c *HTTPClient) Name() string {
	return "http"
}

func newLimiter(requestsPerSecond float64) *rate.Limiter {
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}
