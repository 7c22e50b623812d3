// Package ratelimit implements a per-user fixed-window request counter in the key-value store
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/common"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
)

// Defaults for the fixed window
const (
	DefaultQuota  = 40
	DefaultWindow = 60 * time.Second
)

// Service implements interfaces.RateLimiter. Windows are stored at rl:{userId}.
type Service struct {
	kv     interfaces.KeyValueStorage
	quota  int
	window time.Duration
	now    func() time.Time
	mu     sync.Mutex
	logger arbor.ILogger
}

// NewService creates a limiter allowing quota requests per window
func NewService(kv interfaces.KeyValueStorage, quota int, window time.Duration, logger arbor.ILogger) *Service {
	if quota <= 0 {
		quota = DefaultQuota
	}
	if window < time.Second {
		window = DefaultWindow
	}
	return &Service{
		kv:     kv,
		quota:  quota,
		window: window,
		now:    time.Now,
		logger: logger,
	}
}

// Allow counts a request against userID's current window.
// Read-modify-write is serialised within the process only.
func (s *Service) Allow(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := common.RateLimitKeyPrefix + userID
	now := s.now().Unix()

	state, err := s.load(ctx, key)
	if err != nil {
		return false, err
	}
	if state == nil || state.Expires <= now {
		state = &models.RateLimitState{Count: 0, Expires: now + int64(s.window/time.Second)}
	}

	if state.Count >= s.quota {
		s.logger.Debug().Str("user", userID).Int("count", state.Count).Msg("Rate limit exceeded")
		return false, nil
	}

	state.Count++
	if err := s.save(ctx, key, state); err != nil {
		return false, err
	}
	return true, nil
}

// Sweep deletes windows that have expired or cannot be read
func (s *Service) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.kv.ListKeys(ctx, common.RateLimitKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list rate limit windows: %w", err)
	}

	now := s.now().Unix()
	removed := 0
	for _, key := range keys {
		state, err := s.load(ctx, key)
		if err != nil {
			return removed, err
		}
		if state != nil && state.Expires > now {
			continue
		}
		if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, interfaces.ErrKeyNotFound) {
			return removed, fmt.Errorf("failed to delete %s: %w", key, err)
		}
		removed++
	}
	return removed, nil
}

// load returns nil state for a missing key
func (s *Service) load(ctx context.Context, key string) (*models.RateLimitState, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	var state models.RateLimitState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Resetting unreadable rate limit window")
		return nil, nil
	}
	return &state, nil
}

func (s *Service) save(ctx context.Context, key string, state *models.RateLimitState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
