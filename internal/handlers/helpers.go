package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// ErrorStatus maps a service error to its HTTP status and client message.
// rejectPrefix replaces the default "rejected: " lead of moderation messages.
func ErrorStatus(err error, rejectPrefix string) (int, string) {
	var (
		validation    *interfaces.ValidationError
		rejection     *interfaces.ModerationRejection
		configuration *interfaces.ConfigurationError
		upstream      *interfaces.UpstreamError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Message
	case errors.As(err, &rejection):
		if rejectPrefix != "" {
			return http.StatusBadRequest, rejectPrefix + rejection.Reason
		}
		return http.StatusBadRequest, rejection.Error()
	case errors.As(err, &configuration):
		return http.StatusInternalServerError, configuration.Error()
	case errors.As(err, &upstream):
		return http.StatusBadGateway, "model error: " + upstream.Error()
	case errors.Is(err, interfaces.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// writeServiceError logs and writes err using ErrorStatus
func writeServiceError(w http.ResponseWriter, logger arbor.ILogger, err error, rejectPrefix string) {
	status, message := ErrorStatus(err, rejectPrefix)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
	WriteError(w, status, message)
}

type callerKey struct{}

// WithCaller attaches the authenticated caller to ctx
func WithCaller(ctx context.Context, caller models.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller set by the auth middleware
func CallerFromContext(ctx context.Context) (models.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(models.Caller)
	return caller, ok && caller.UserID != ""
}

// requireCaller writes 401 when the request carries no caller
func requireCaller(w http.ResponseWriter, r *http.Request) (models.Caller, bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "Unauthorized")
	}
	return caller, ok
}
