package server

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/ragstream/internal/handlers"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/services/auth"
)

// publicPaths skip API key checks and rate limiting
var publicPaths = map[string]bool{
	"/api/health":  true,
	"/api/version": true,
}

// withMiddleware wraps the router with middleware chain
func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last applied = first executed)
	handler = s.authMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	return handler
}

// loggingMiddleware logs HTTP requests and responses
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Query strings can carry api_key for WebSocket clients, so they are not logged
		s.app.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Msg("HTTP request")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.app.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP response")
	})
}

// corsMiddleware allows browser clients from any origin
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, x-api-key")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics and returns 500 error
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.app.Logger.Error().
					Str("error", fmt.Sprintf("%v", err)).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				handlers.WriteError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the caller from its API key and applies the per-user rate limit.
// Unknown routes are authenticated too.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		key := auth.KeyFromRequest(r.Header)
		// Browsers cannot set headers on a WebSocket handshake
		if key == "" && websocket.IsWebSocketUpgrade(r) {
			key = r.URL.Query().Get("api_key")
		}

		caller, err := s.app.AuthService.Authenticate(r.Context(), key)
		if err != nil {
			if errors.Is(err, interfaces.ErrUnauthorized) {
				handlers.WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			s.app.Logger.Error().Err(err).Msg("API key lookup failed")
			handlers.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if s.app.Config.RateLimit.Enabled {
			allowed, err := s.app.RateLimiter.Allow(r.Context(), caller.UserID)
			if err != nil {
				s.app.Logger.Error().Err(err).Str("user", caller.UserID).Msg("Rate limit check failed")
				handlers.WriteError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if !allowed {
				s.app.Logger.Debug().Str("user", caller.UserID).Msg("Rate limit exceeded")
				handlers.WriteError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(handlers.WithCaller(r.Context(), caller)))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes through so server-sent events reach the client as they are written
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker interface for WebSocket support
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("responseWriter does not implement http.Hijacker")
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
