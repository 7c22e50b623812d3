package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
)

// ChatHandler handles chat-related HTTP requests
type ChatHandler struct {
	chatService interfaces.ChatService
	logger      arbor.ILogger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService interfaces.ChatService, logger arbor.ILogger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// sseSink defers the SSE headers until the first relayed byte so that
// failures before streaming can still be answered with a JSON error.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// start commits the event-stream headers once
func (s *sseSink) start() {
	if s.started {
		return
	}
	s.started = true
	header := s.w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

func (s *sseSink) Write(p []byte) (int, error) {
	s.start()
	return s.w.Write(p)
}

func (s *sseSink) Flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// ChatHandler handles POST /chat and streams the model output as server-sent events
func (h *ChatHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "messages array required")
		return
	}

	flusher, _ := w.(http.Flusher)
	sink := &sseSink{w: w, flusher: flusher}

	h.logger.Debug().
		Str("user", caller.UserID).
		Int("messages", len(req.Messages)).
		Msg("Processing chat request")

	started, err := h.chatService.StreamChat(r.Context(), caller, &req, sink)
	if err == nil {
		// An upstream stream that ends without bytes is still an event stream
		sink.start()
		return
	}

	if !started && !sink.started {
		writeServiceError(w, h.logger, err, "Message rejected: ")
		return
	}

	if r.Context().Err() != nil {
		h.logger.Debug().Str("user", caller.UserID).Msg("Client disconnected during chat stream")
		return
	}

	h.logger.Warn().Err(err).Str("user", caller.UserID).Msg("Chat stream terminated with error")
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	fmt.Fprintf(sink, "event: error\ndata: %s\n\n", payload)
	sink.Flush()
}

// AskHandler handles POST /ask with a single non-streaming answer
func (h *ChatHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	answer, err := h.chatService.Ask(r.Context(), caller, req.Question)
	if err != nil {
		writeServiceError(w, h.logger, err, "Message rejected: ")
		return
	}

	WriteJSON(w, http.StatusOK, answer)
}
