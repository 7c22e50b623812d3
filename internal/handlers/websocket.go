package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/ragstream/internal/common"
	"github.com/ternarybob/ragstream/internal/models"
)

const (
	wsRequestTimeout = 30 * time.Second
	wsWriteTimeout   = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsSink relays each chunk of the model stream as one text frame
type wsSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsSink) Flush() {}

func (s *wsSink) writeJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(v)
}

func (s *wsSink) close(code int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteTimeout))
}

// WebSocketHandler handles GET /ws/chat. The client sends one chat request as JSON;
// the model stream is relayed as text frames and the server closes when it ends.
// Closing the socket early cancels generation.
func (h *ChatHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sink := &wsSink{conn: conn}

	var req models.ChatRequest
	conn.SetReadDeadline(time.Now().Add(wsRequestTimeout))
	if err := conn.ReadJSON(&req); err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket chat request unreadable")
		sink.writeJSON(map[string]string{"status": "error", "error": "messages array required"})
		sink.close(websocket.CloseUnsupportedData, "invalid request")
		return
	}
	conn.SetReadDeadline(time.Time{})

	// The request context outlives the hijack until this handler returns
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Any further read error means the client went away
	common.SafeGo(h.logger, "wsChatReader", func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug().Err(err).Msg("WebSocket chat client closed unexpectedly")
				}
				return
			}
		}
	})

	started, err := h.chatService.StreamChat(ctx, caller, &req, sink)
	switch {
	case err == nil:
		sink.close(websocket.CloseNormalClosure, "")
	case ctx.Err() != nil:
		h.logger.Debug().Str("user", caller.UserID).Msg("WebSocket chat cancelled by client")
	default:
		status, message := ErrorStatus(err, "Message rejected: ")
		if started || status >= http.StatusInternalServerError {
			h.logger.Warn().Err(err).Bool("started", started).Msg("WebSocket chat failed")
		}
		sink.writeJSON(map[string]string{"status": "error", "error": message})
		sink.close(websocket.CloseNormalClosure, "")
	}
}
