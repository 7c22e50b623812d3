package handlers

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

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
)

// mockDocumentService implements interfaces.DocumentService for testing
type mockDocumentService struct {
	ingestFunc func(ctx context.Context, caller models.Caller, title, text string) (string, error)
	saveFunc   func(ctx context.Context, caller models.Caller, filename, contentType string, r io.Reader) (*models.FileRecord, error)
	listFunc   func(ctx context.Context, caller models.Caller) ([]models.ListEntry, error)
}

func (m *mockDocumentService) IngestText(ctx context.Context, caller models.Caller, title, text string) (string, error) {
	return m.ingestFunc(ctx, caller, title, text)
}

func (m *mockDocumentService) SaveFile(ctx context.Context, caller models.Caller, filename, contentType string, r io.Reader) (*models.FileRecord, error) {
	return m.saveFunc(ctx, caller, filename, contentType, r)
}

func (m *mockDocumentService) List(ctx context.Context, caller models.Caller) ([]models.ListEntry, error) {
	return m.listFunc(ctx, caller)
}

// mockChatService implements interfaces.ChatService for testing
type mockChatService struct {
	streamFunc func(ctx context.Context, caller models.Caller, req *models.ChatRequest, sink interfaces.StreamSink) (bool, error)
	askFunc    func(ctx context.Context, caller models.Caller, question string) (*models.AskResponse, error)
}

func (m *mockChatService) StreamChat(ctx context.Context, caller models.Caller, req *models.ChatRequest, sink interfaces.StreamSink) (bool, error) {
	return m.streamFunc(ctx, caller, req, sink)
}

func (m *mockChatService) Ask(ctx context.Context, caller models.Caller, question string) (*models.AskResponse, error) {
	return m.askFunc(ctx, caller, question)
}

func authed(r *http.Request) *http.Request {
	return r.WithContext(WithCaller(r.Context(), models.Caller{UserID: "alice"}))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	return body["error"]
}

func TestUploadHandler_JSON(t *testing.T) {
	var gotTitle, gotText string
	handler := NewDocumentHandler(&mockDocumentService{
		ingestFunc: func(ctx context.Context, caller models.Caller, title, text string) (string, error) {
			assert.Equal(t, "alice", caller.UserID)
			gotTitle, gotText = title, text
			return "doc:alice:1", nil
		},
	}, 1024, arbor.NewLogger())

	req := authed(httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"text":"hello"}`)))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	handler.UploadHandler(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":"doc:alice:1"}`, rec.Body.String())
	assert.Equal(t, "", gotTitle)
	assert.Equal(t, "hello", gotText)
}

func TestUploadHandler_Errors(t *testing.T) {
	handler := NewDocumentHandler(&mockDocumentService{
		ingestFunc: func(ctx context.Context, caller models.Caller, title, text string) (string, error) {
			return "", &interfaces.ModerationRejection{Reason: "content blocked by heuristics"}
		},
	}, 64, arbor.NewLogger())

	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
		wantError   string
	}{
		{"missing text", `{"title":"t"}`, "application/json", http.StatusBadRequest, "Missing text"},
		{"moderated", `{"text":"bomb"}`, "application/json", http.StatusBadRequest, "rejected: content blocked by heuristics"},
		{"malformed", `{`, "application/json", http.StatusBadRequest, "Invalid request body"},
		{"too large", `{"text":"` + strings.Repeat("a", 100) + `"}`, "application/json", http.StatusRequestEntityTooLarge, "Upload too large"},
		{"unsupported", `raw`, "application/octet-stream", http.StatusBadRequest, "Unsupported upload content type. Send JSON {title, text} or binary with x-filename header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authed(httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(tt.body)))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			handler.UploadHandler(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decodeError(t, rec))
		})
	}
}

func TestUploadHandler_RawFile(t *testing.T) {
	handler := NewDocumentHandler(&mockDocumentService{
		saveFunc: func(ctx context.Context, caller models.Caller, filename, contentType string, r io.Reader) (*models.FileRecord, error) {
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "report.pdf", filename)
			assert.Equal(t, "%PDF", string(data))
			return &models.FileRecord{ID: "file:alice/1-report.pdf"}, nil
		},
	}, 0, arbor.NewLogger())

	req := authed(httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("%PDF")))
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set(HeaderFilename, "report.pdf")
	rec := httptest.NewRecorder()
	handler.UploadHandler(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":"file:alice/1-report.pdf"}`, rec.Body.String())
}

func TestUploadHandler_RequiresCaller(t *testing.T) {
	handler := NewDocumentHandler(&mockDocumentService{}, 0, arbor.NewLogger())
	rec := httptest.NewRecorder()
	handler.UploadHandler(rec, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("{}")))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decodeError(t, rec))
}

func TestListHandler(t *testing.T) {
	handler := NewDocumentHandler(&mockDocumentService{
		listFunc: func(ctx context.Context, caller models.Caller) ([]models.ListEntry, error) {
			return []models.ListEntry{
				&models.Document{ID: "doc:alice:1", Title: "t", OwnerID: "alice", CreatedAt: 5, TextSnippet: "s"},
				&models.FileRecord{ID: "file:alice/1-a.bin", Filename: "a.bin", OwnerID: "alice", CreatedAt: 6},
			}, nil
		},
	}, 0, arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.ListHandler(rec, authed(httptest.NewRequest(http.MethodGet, "/docs", nil)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"docs":[
		{"id":"doc:alice:1","title":"t","userId":"alice","createdAt":5,"textSnippet":"s"},
		{"id":"file:alice/1-a.bin","filename":"a.bin","userId":"alice","createdAt":6}
	]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ListHandler(rec, authed(httptest.NewRequest(http.MethodPost, "/docs", nil)))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestChatHandler_Streams(t *testing.T) {
	handler := NewChatHandler(&mockChatService{
		streamFunc: func(ctx context.Context, caller models.Caller, req *models.ChatRequest, sink interfaces.StreamSink) (bool, error) {
			assert.False(t, req.ShouldRetrieve())
			require.Len(t, req.Messages, 1)
			sink.Write([]byte("data: one\n\n"))
			sink.Flush()
			sink.Write([]byte("data: [DONE]\n\n"))
			sink.Flush()
			return true, nil
		},
	}, arbor.NewLogger())

	body := `{"messages":[{"role":"user","content":"hi"}],"retrieve_docs":false}`
	rec := httptest.NewRecorder()
	handler.ChatHandler(rec, authed(httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "data: one\n\ndata: [DONE]\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestChatHandler_EmptyStreamKeepsEventStreamHeaders(t *testing.T) {
	handler := NewChatHandler(&mockChatService{
		streamFunc: func(ctx context.Context, caller models.Caller, req *models.ChatRequest, sink interfaces.StreamSink) (bool, error) {
			return false, nil
		},
	}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.ChatHandler(rec, authed(httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"messages":[]}`))))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Body.String())
}

func TestChatHandler_ErrorsBeforeStreaming(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"moderation", &interfaces.ModerationRejection{Reason: "content blocked by heuristics"}, http.StatusBadRequest, "Message rejected: content blocked by heuristics"},
		{"upstream", &interfaces.UpstreamError{Service: "chat", StatusCode: 500, Body: "boom"}, http.StatusBadGateway, "model error: chat failed 500: boom"},
		{"configuration", &interfaces.ConfigurationError{Component: "generation", Missing: "endpoint"}, http.StatusInternalServerError, "generation not configured: endpoint"},
		{"validation", interfaces.NewValidationError("invalid chat request"), http.StatusBadRequest, "invalid chat request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewChatHandler(&mockChatService{
				streamFunc: func(ctx context.Context, caller models.Caller, req *models.ChatRequest, sink interfaces.StreamSink) (bool, error) {
					return false, tt.err
				},
			}, arbor.NewLogger())

			rec := httptest.NewRecorder()
			handler.ChatHandler(rec, authed(httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"messages":[]}`))))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantError, decodeError(t, rec))
		})
	}
}

func TestChatHandler_MidStreamFailure(t *testing.T) {
	handler := NewChatHandler(&mockChatService{
		streamFunc: func(ctx context.Context, caller models.Caller, req *models.ChatRequest, sink interfaces.StreamSink) (bool, error) {
			sink.Write([]byte("data: partial\n\n"))
			return true, &interfaces.UpstreamError{Service: "chat", Err: errors.New("reset")}
		},
	}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.ChatHandler(rec, authed(httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"messages":[]}`))))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data: partial\n\nevent: error\ndata: {\"error\":\"chat failed: reset\"}\n\n", rec.Body.String())
}

func TestAskHandler(t *testing.T) {
	handler := NewChatHandler(&mockChatService{
		askFunc: func(ctx context.Context, caller models.Caller, question string) (*models.AskResponse, error) {
			assert.Equal(t, "why?", question)
			return &models.AskResponse{Answer: "because", Sources: []string{"doc:alice:1"}}, nil
		},
	}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.AskHandler(rec, authed(httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"why?"}`))))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"answer":"because","sources":["doc:alice:1"]}`, rec.Body.String())
}

func TestWebSocketHandler(t *testing.T) {
	handler := NewChatHandler(&mockChatService{
		streamFunc: func(ctx context.Context, caller models.Caller, req *models.ChatRequest, sink interfaces.StreamSink) (bool, error) {
			assert.Equal(t, "alice", caller.UserID)
			assert.Equal(t, "hi", req.Messages[0].Content)
			sink.Write([]byte("data: one\n\n"))
			sink.Write([]byte("data: two\n\n"))
			return true, nil
		},
	}, arbor.NewLogger())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.WebSocketHandler(w, authed(r))
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.ChatRequest{Messages: []models.ChatMessage{{Role: "user", Content: "hi"}}}))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var frames []string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		frames = append(frames, string(data))
	}
	assert.Equal(t, []string{"data: one\n\n", "data: two\n\n"}, frames)
}

func TestWebSocketHandler_ReportsErrors(t *testing.T) {
	handler := NewChatHandler(&mockChatService{
		streamFunc: func(ctx context.Context, caller models.Caller, req *models.ChatRequest, sink interfaces.StreamSink) (bool, error) {
			return false, &interfaces.ModerationRejection{Reason: "content blocked by heuristics"}
		},
	}, arbor.NewLogger())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.WebSocketHandler(w, authed(r))
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.ChatRequest{Messages: []models.ChatMessage{{Role: "user", Content: "bomb"}}}))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var payload map[string]string
	require.NoError(t, conn.ReadJSON(&payload))
	assert.Equal(t, "Message rejected: content blocked by heuristics", payload["error"])
}

func TestWebSocketHandler_RequestContextCancelsStream(t *testing.T) {
	streaming := make(chan struct{})
	streamErr := make(chan error, 1)
	handler := NewChatHandler(&mockChatService{
		streamFunc: func(ctx context.Context, caller models.Caller, req *models.ChatRequest, sink interfaces.StreamSink) (bool, error) {
			close(streaming)
			<-ctx.Done()
			streamErr <- ctx.Err()
			return true, ctx.Err()
		},
	}, arbor.NewLogger())

	serverCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.WebSocketHandler(w, authed(r.WithContext(serverCtx)))
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.ChatRequest{Messages: []models.ChatMessage{{Role: "user", Content: "hi"}}}))

	select {
	case <-streaming:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never started")
	}

	stopServer()

	select {
	case err := <-streamErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream was not cancelled with the request context")
	}
}

func TestAPIHandler(t *testing.T) {
	handler := NewAPIHandler(arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.VersionHandler(rec, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version"`)

	rec = httptest.NewRecorder()
	handler.NotFoundHandler(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found\n", rec.Body.String())
}

func TestErrorStatus(t *testing.T) {
	status, message := ErrorStatus(interfaces.ErrUnauthorized, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Unauthorized", message)

	status, message = ErrorStatus(errors.New("disk full"), "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "disk full", message)

	status, _ = ErrorStatus(&interfaces.UpstreamError{Service: "embeddings", StatusCode: 503}, "")
	assert.Equal(t, http.StatusBadGateway, status)
}
