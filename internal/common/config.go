package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	Auth        AuthConfig        `toml:"auth"`
	RateLimit   RateLimitConfig   `toml:"rate_limit"`
	Embeddings  EmbeddingsConfig  `toml:"embeddings"`
	Generation  GenerationConfig  `toml:"generation"`
	Retrieval   RetrievalConfig   `toml:"retrieval"`
	Chat        ChatConfig        `toml:"chat"`
	Moderation  ModerationConfig  `toml:"moderation"`
	Upload      UploadConfig      `toml:"upload"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
	// ReadTimeout applies to request bodies. Streaming responses are not bounded by a write timeout.
	ReadTimeout string `toml:"read_timeout"`
}

type StorageConfig struct {
	Type       string           `toml:"type"` // "badger", "sqlite" or "memory"
	Badger     BadgerConfig     `toml:"badger"`
	SQLite     SQLiteConfig     `toml:"sqlite"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
	InMemory       bool   `toml:"in_memory"`        // Run without touching disk
}

// SQLiteConfig represents SQLite-specific configuration
type SQLiteConfig struct {
	Path          string `toml:"path"`
	WALMode       bool   `toml:"wal_mode"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

type FilesystemConfig struct {
	Attachments string `toml:"attachments"` // Raw uploaded files
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// AuthConfig controls API key resolution
type AuthConfig struct {
	KeysFile string `toml:"keys_file"` // TOML file of api keys loaded into the store at startup
}

// RateLimitConfig is a fixed window per user
type RateLimitConfig struct {
	Enabled bool   `toml:"enabled"`
	Quota   int    `toml:"quota"`
	Window  string `toml:"window"`
}

// EmbeddingsConfig selects and configures the embedding provider
type EmbeddingsConfig struct {
	Provider   string  `toml:"provider"` // "http" or "gemini"
	Endpoint   string  `toml:"endpoint"` // Base URL, {endpoint}/embeddings is called
	APIKey     string  `toml:"api_key"`
	Model      string  `toml:"model"`
	Dimensions int32   `toml:"dimensions"` // Gemini output dimensionality, 0 = model default
	RateLimit  float64 `toml:"rate_limit"` // Requests per second, 0 = unlimited
}

// GenerationConfig selects and configures the streaming generation provider
type GenerationConfig struct {
	Provider    string  `toml:"provider"` // "http", "claude" or "gemini"
	Endpoint    string  `toml:"endpoint"` // Base URL, {endpoint}/chat/stream is called
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	RateLimit   float64 `toml:"rate_limit"` // Requests per second, 0 = unlimited
}

type RetrievalConfig struct {
	TopK int `toml:"top_k"`
	// SharedCorpus searches every owner's embeddings instead of only the caller's
	SharedCorpus bool `toml:"shared_corpus"`
}

type ChatConfig struct {
	MaxHistoryTokens int    `toml:"max_history_tokens"`
	AskPrompt        string `toml:"ask_prompt"`
}

type ModerationConfig struct {
	Enabled      bool     `toml:"enabled"`
	BlockedTerms []string `toml:"blocked_terms"` // Appended to the built-in list
}

type UploadConfig struct {
	MaxBytes        int64 `toml:"max_bytes"`
	SnippetLength   int   `toml:"snippet_length"`
	ChunkSize       int   `toml:"chunk_size"`
	IngestTextFiles bool  `toml:"ingest_text_files"`
	IngestWorkers   int   `toml:"ingest_workers"` // Concurrent chunk embeddings per upload
}

// MaintenanceConfig schedules background housekeeping
type MaintenanceConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule format
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:        8787,
			Host:        "localhost",
			ReadTimeout: "30s",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data/ragstream",
			},
			SQLite: SQLiteConfig{
				Path:          "./data/ragstream.db",
				WALMode:       true,
				BusyTimeoutMS: 5000,
			},
			Filesystem: FilesystemConfig{
				Attachments: "./data/files",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Auth: AuthConfig{
			KeysFile: "./keys.toml",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Quota:   40,
			Window:  "60s",
		},
		Embeddings: EmbeddingsConfig{
			Provider: "http",
			Model:    "text-embedding-3-small",
		},
		Generation: GenerationConfig{
			Provider:    "http",
			Model:       "gpt-4o-mini",
			MaxTokens:   1024,
			Temperature: 0.7,
		},
		Retrieval: RetrievalConfig{
			TopK: 4,
		},
		Chat: ChatConfig{
			MaxHistoryTokens: 3000,
			AskPrompt:        "Answer using the provided context.",
		},
		Moderation: ModerationConfig{
			Enabled: true,
		},
		Upload: UploadConfig{
			MaxBytes:        20 * 1024 * 1024,
			SnippetLength:   200,
			ChunkSize:       1500,
			IngestTextFiles: true,
			IngestWorkers:   4,
		},
		Maintenance: MaintenanceConfig{
			Enabled:  true,
			Schedule: "*/10 * * * *",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RAGSTREAM_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("RAGSTREAM_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("RAGSTREAM_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if storageType := os.Getenv("RAGSTREAM_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if badgerPath := os.Getenv("RAGSTREAM_STORAGE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if sqlitePath := os.Getenv("RAGSTREAM_STORAGE_SQLITE_PATH"); sqlitePath != "" {
		config.Storage.SQLite.Path = sqlitePath
	}

	// Logging configuration
	if level := os.Getenv("RAGSTREAM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("RAGSTREAM_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitString(output, ",")
	}

	if keysFile := os.Getenv("RAGSTREAM_AUTH_KEYS_FILE"); keysFile != "" {
		config.Auth.KeysFile = keysFile
	}

	// Upstream AI endpoints. WORKER_AI_* is accepted for existing deployments.
	if endpoint := firstEnv("RAGSTREAM_AI_ENDPOINT", "WORKER_AI_ENDPOINT"); endpoint != "" {
		config.Embeddings.Endpoint = endpoint
		config.Generation.Endpoint = endpoint
	}
	if key := firstEnv("RAGSTREAM_AI_KEY", "WORKER_AI_KEY"); key != "" {
		config.Embeddings.APIKey = key
		config.Generation.APIKey = key
	}
	if provider := os.Getenv("RAGSTREAM_EMBEDDINGS_PROVIDER"); provider != "" {
		config.Embeddings.Provider = provider
	}
	if key := os.Getenv("RAGSTREAM_EMBEDDINGS_API_KEY"); key != "" {
		config.Embeddings.APIKey = key
	}
	if provider := os.Getenv("RAGSTREAM_GENERATION_PROVIDER"); provider != "" {
		config.Generation.Provider = provider
	}
	if key := os.Getenv("RAGSTREAM_GENERATION_API_KEY"); key != "" {
		config.Generation.APIKey = key
	}
	if model := os.Getenv("RAGSTREAM_GENERATION_MODEL"); model != "" {
		config.Generation.Model = model
	}

	if topK := os.Getenv("RAGSTREAM_RETRIEVAL_TOP_K"); topK != "" {
		if k, err := strconv.Atoi(topK); err == nil {
			config.Retrieval.TopK = k
		}
	}
	if budget := os.Getenv("RAGSTREAM_CHAT_MAX_HISTORY_TOKENS"); budget != "" {
		if b, err := strconv.Atoi(budget); err == nil {
			config.Chat.MaxHistoryTokens = b
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks values that would otherwise fail late at request time
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "badger", "sqlite", "memory":
	default:
		return fmt.Errorf("invalid storage type %q: must be badger, sqlite or memory", c.Storage.Type)
	}

	switch c.Embeddings.Provider {
	case "http", "gemini":
	default:
		return fmt.Errorf("invalid embeddings provider %q: must be http or gemini", c.Embeddings.Provider)
	}

	switch c.Generation.Provider {
	case "http", "claude", "gemini":
	default:
		return fmt.Errorf("invalid generation provider %q: must be http, claude or gemini", c.Generation.Provider)
	}

	if c.Chat.MaxHistoryTokens < 0 {
		return fmt.Errorf("chat.max_history_tokens must not be negative")
	}

	if _, err := time.ParseDuration(c.RateLimit.Window); c.RateLimit.Enabled && err != nil {
		return fmt.Errorf("invalid rate_limit.window %q: %w", c.RateLimit.Window, err)
	}

	if c.Maintenance.Enabled {
		if _, err := cron.ParseStandard(c.Maintenance.Schedule); err != nil {
			return fmt.Errorf("invalid maintenance.schedule %q: %w", c.Maintenance.Schedule, err)
		}
	}

	return nil
}

// IsProduction reports whether the environment is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ParseDuration parses a duration string, falling back when empty or invalid
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func splitString(s, sep string) []string {
	var parts []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
