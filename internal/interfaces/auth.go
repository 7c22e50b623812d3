package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/ragstream/internal/models"
)

// ErrUnauthorized is returned when no valid API key accompanies a request
var ErrUnauthorized = errors.New("unauthorized")

// AuthService resolves API keys to callers
type AuthService interface {
	// Authenticate looks up the raw key value (Bearer prefix already removed)
	Authenticate(ctx context.Context, apiKey string) (models.Caller, error)
}

// RateLimiter decides whether a caller may make another request
type RateLimiter interface {
	Allow(ctx context.Context, userID string) (bool, error)

	// Sweep removes expired windows and returns how many were deleted
	Sweep(ctx context.Context) (int, error)
}
