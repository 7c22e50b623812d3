package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/interfaces"
)

func TestHTTPClient_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultModel, body["model"])
		assert.Equal(t, "hello", body["input"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"embedding":[0.5,-0.25,1]}]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL+"/v1/", "secret")
	vector, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25, 1}, vector)
}

func TestHTTPClient_NotConfigured(t *testing.T) {
	_, err := NewHTTPClient("", "key").Embed(context.Background(), "x")
	assert.True(t, interfaces.IsConfigurationError(err))

	_, err = NewHTTPClient("http://example.invalid", "").Embed(context.Background(), "x")
	assert.True(t, interfaces.IsConfigurationError(err))
}

func TestHTTPClient_UpstreamStatusNoRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, "secret").Embed(context.Background(), "hello")
	require.Error(t, err)

	var upstream *interfaces.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
	assert.Equal(t, "embeddings failed: 503", err.Error())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPClient_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, "secret").Embed(context.Background(), "hello")
	assert.True(t, interfaces.IsUpstreamError(err))
}

func TestHTTPClient_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPClient(server.URL, "secret").Embed(ctx, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

type stubProvider struct {
	calls  int
	vector []float32
	err    error
}

func (p *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls++
	return p.vector, p.err
}

func (p *stubProvider) Model() string { return "stub" }

func TestService_RejectsEmptyText(t *testing.T) {
	provider := &stubProvider{vector: []float32{1}}
	service := NewService(provider, arbor.NewLogger())

	_, err := service.Embed(context.Background(), "   ")
	var validation *interfaces.ValidationError
	assert.True(t, errors.As(err, &validation))
	assert.Equal(t, 0, provider.calls)
}

func TestService_PassesThroughTypedErrors(t *testing.T) {
	provider := &stubProvider{err: &interfaces.UpstreamError{Service: "embeddings", StatusCode: 500}}
	service := NewService(provider, arbor.NewLogger())

	_, err := service.Embed(context.Background(), "hello")
	assert.True(t, interfaces.IsUpstreamError(err))
	assert.Equal(t, "stub", service.ModelName())
}

func TestGeminiClient_MissingKey(t *testing.T) {
	client, err := NewGeminiClient(context.Background(), "", "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultGeminiModel, client.Model())

	_, err = client.Embed(context.Background(), "hello")
	assert.True(t, interfaces.IsConfigurationError(err))
}
