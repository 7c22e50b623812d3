package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/common"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
)

func TestHTTPClient_StreamRelaysBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/stream", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body streamRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultModel, body.Model)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "hi", body.Messages[0].Content)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: one\n\ndata: two\n\n"))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL+"/", "secret", arbor.NewLogger())
	stream, err := client.Stream(context.Background(), []models.ChatMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "data: one\n\ndata: two\n\n", string(data))
}

func TestHTTPClient_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, "secret", arbor.NewLogger()).
		Stream(context.Background(), []models.ChatMessage{{Role: "user", Content: "hi"}})

	var upstream *interfaces.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusTooManyRequests, upstream.StatusCode)
	assert.Equal(t, "chat failed 429: model overloaded", err.Error())
}

func TestHTTPClient_NotConfigured(t *testing.T) {
	_, err := NewHTTPClient("", "", arbor.NewLogger()).Stream(context.Background(), nil)
	assert.True(t, interfaces.IsConfigurationError(err))
}

func TestHTTPClient_CancellationReachesUpstream(t *testing.T) {
	upstreamCancelled := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: first\n\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(upstreamCancelled)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewHTTPClient(server.URL, "secret", arbor.NewLogger()).
		Stream(ctx, []models.ChatMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	defer stream.Close()

	buf := make([]byte, len("data: first\n\n"))
	_, err = io.ReadFull(stream, buf)
	require.NoError(t, err)
	assert.Equal(t, "data: first\n\n", string(buf))

	cancel()

	select {
	case <-upstreamCancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream request was not cancelled")
	}
}

func TestSplitSystem(t *testing.T) {
	system, turns, err := splitSystem([]models.ChatMessage{
		{Role: "system", Content: "a"},
		{Role: "user", Content: "q"},
		{Role: "system", Content: "b"},
		{Role: "assistant", Content: "r"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a\n\nb", system)
	assert.Equal(t, []models.ChatMessage{{Role: "user", Content: "q"}, {Role: "assistant", Content: "r"}}, turns)

	_, _, err = splitSystem([]models.ChatMessage{{Role: "system", Content: "only"}})
	var validation *interfaces.ValidationError
	assert.True(t, errors.As(err, &validation))
}

func TestWriteTextFrame(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, writeTextFrame(&sb, "he said \"hi\"\n"))
	assert.Equal(t, "data: {\"response\":\"he said \\\"hi\\\"\\n\"}\n\n", sb.String())
}

func TestStartPipe_DeliversOutputAndError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := startPipe(ctx, cancel, arbor.NewLogger(), "test", func(ctx context.Context, w io.Writer) error {
		io.WriteString(w, "partial")
		return errors.New("boom")
	})
	defer stream.Close()

	data, err := io.ReadAll(stream)
	assert.Equal(t, "partial", string(data))
	assert.EqualError(t, err, "boom")
}

func TestStartPipe_CloseCancelsProducer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	stream := startPipe(ctx, cancel, arbor.NewLogger(), "test", func(ctx context.Context, w io.Writer) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	})

	require.NoError(t, stream.Close())

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not observe cancellation")
	}
}

func TestSDKClients_MissingKey(t *testing.T) {
	config := &common.GenerationConfig{Model: DefaultModel}
	messages := []models.ChatMessage{{Role: "user", Content: "hi"}}

	claude := NewClaudeClient(config, arbor.NewLogger())
	assert.Equal(t, DefaultClaudeModel, claude.model)
	_, err := claude.Stream(context.Background(), messages)
	assert.True(t, interfaces.IsConfigurationError(err))

	gemini, err := NewGeminiClient(context.Background(), config, arbor.NewLogger())
	require.NoError(t, err)
	_, err = gemini.Stream(context.Background(), messages)
	assert.True(t, interfaces.IsConfigurationError(err))
}

func TestNewFromConfig(t *testing.T) {
	service, err := NewFromConfig(context.Background(), &common.GenerationConfig{Provider: "http"}, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, "http", service.Name())

	_, err = NewFromConfig(context.Background(), &common.GenerationConfig{Provider: "nope"}, arbor.NewLogger())
	assert.Error(t, err)
}
