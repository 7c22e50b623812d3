package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/common"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
)

// HeaderAPIKey is the alternative to a Bearer token
const HeaderAPIKey = "x-api-key"

// Service resolves API keys stored at apikey:{key}
type Service struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewService creates a new API key authentication service
func NewService(kv interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		kv:     kv,
		logger: logger,
	}
}

// KeyFromRequest returns the Bearer token or x-api-key header value, or ""
func KeyFromRequest(header http.Header) string {
	if authz := strings.TrimSpace(header.Get("Authorization")); authz != "" {
		if token, ok := cutPrefixFold(authz, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(header.Get(HeaderAPIKey))
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return "", false
}

// Authenticate maps a key to its owner. The stored value is either JSON
// {"userId": ...} or the bare user id.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (models.Caller, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return models.Caller{}, interfaces.ErrUnauthorized
	}

	raw, err := s.kv.Get(ctx, common.APIKeyPrefix+apiKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return models.Caller{}, interfaces.ErrUnauthorized
	}
	if err != nil {
		return models.Caller{}, fmt.Errorf("failed to look up api key: %w", err)
	}

	userID := parseUserID(raw)
	if userID == "" || strings.ContainsAny(userID, ":/") {
		s.logger.Warn().Str("user_id", userID).Msg("API key maps to an unusable user id")
		return models.Caller{}, interfaces.ErrUnauthorized
	}

	return models.Caller{UserID: userID}, nil
}

func parseUserID(raw string) string {
	raw = strings.TrimSpace(raw)

	var record models.APIKeyRecord
	if err := json.Unmarshal([]byte(raw), &record); err == nil {
		return strings.TrimSpace(record.UserID)
	}
	return raw
}
