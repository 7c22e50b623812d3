package models

// APIKeyRecord is stored at apikey:{key}. Legacy records hold the bare user id instead of JSON.
type APIKeyRecord struct {
	UserID string `json:"userId" toml:"user_id"`
	Name   string `json:"name,omitempty" toml:"name"`
}

// Caller identifies the authenticated owner of a request
type Caller struct {
	UserID string
}

// RateLimitState is the fixed-window counter stored at rl:{userId}
type RateLimitState struct {
	Count   int   `json:"count"`
	Expires int64 `json:"expires"` // Unix seconds
}
