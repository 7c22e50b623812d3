package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/ragstream/internal/common"
	"github.com/ternarybob/ragstream/internal/models"
)

// APIKeyFile is one entry of the keys file
// Format:
//
//	[sk-live-123]
//	user_id = "alice"
//	name = "alice laptop"
type APIKeyFile struct {
	UserID string `toml:"user_id"`
	Name   string `toml:"name"`
}

// LoadAPIKeysFromFile upserts apikey:{key} records from a TOML file.
// A missing file is not an error; keys are usually provisioned once.
func (m *Manager) LoadAPIKeysFromFile(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		m.logger.Debug().Str("file", path).Msg("API keys file not found, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read API keys file: %w", err)
	}

	var entries map[string]APIKeyFile
	if err := toml.Unmarshal(content, &entries); err != nil {
		return fmt.Errorf("failed to parse API keys file %s: %w", path, err)
	}

	loaded, skipped := 0, 0
	for key, entry := range entries {
		key = strings.TrimSpace(key)
		if key == "" || entry.UserID == "" || strings.ContainsAny(entry.UserID, ":/") {
			m.logger.Warn().Str("file", path).Msg("Skipping API key with empty key or invalid user_id")
			skipped++
			continue
		}

		data, err := json.Marshal(models.APIKeyRecord{UserID: entry.UserID, Name: entry.Name})
		if err != nil {
			return err
		}
		if err := m.kv.Set(ctx, common.APIKeyPrefix+key, string(data)); err != nil {
			return fmt.Errorf("failed to store API key for %s: %w", entry.UserID, err)
		}
		loaded++
	}

	m.logger.Info().
		Int("loaded", loaded).
		Int("skipped", skipped).
		Str("file", path).
		Msg("API keys loaded")

	return nil
}
