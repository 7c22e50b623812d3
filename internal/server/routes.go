package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Corpus
	mux.HandleFunc("/upload", s.app.DocumentHandler.UploadHandler) // POST - JSON text or raw file
	mux.HandleFunc("/docs", s.app.DocumentHandler.ListHandler)     // GET - caller's documents and files

	// Chat
	mux.HandleFunc("/chat", s.app.ChatHandler.ChatHandler)         // POST - SSE stream
	mux.HandleFunc("/ws/chat", s.app.ChatHandler.WebSocketHandler) // GET - WebSocket stream
	mux.HandleFunc("/ask", s.app.ChatHandler.AskHandler)           // POST - single answer

	// System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// Everything else
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
