package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/common"
	"github.com/ternarybob/ragstream/internal/handlers"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/services/auth"
	"github.com/ternarybob/ragstream/internal/services/chat"
	"github.com/ternarybob/ragstream/internal/services/documents"
	"github.com/ternarybob/ragstream/internal/services/embeddings"
	"github.com/ternarybob/ragstream/internal/services/extract"
	"github.com/ternarybob/ragstream/internal/services/generation"
	"github.com/ternarybob/ragstream/internal/services/maintenance"
	"github.com/ternarybob/ragstream/internal/services/moderation"
	"github.com/ternarybob/ragstream/internal/services/ratelimit"
	"github.com/ternarybob/ragstream/internal/services/search"
	"github.com/ternarybob/ragstream/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager *storage.Manager

	// Core services
	EmbeddingService  interfaces.EmbeddingService
	GenerationService interfaces.GenerationService
	SearchService     interfaces.SearchService
	Moderator         interfaces.Moderator
	DocumentService   interfaces.DocumentService
	ChatService       interfaces.ChatService

	// Request gating
	AuthService interfaces.AuthService
	RateLimiter interfaces.RateLimiter

	// Background housekeeping, nil when disabled
	Scheduler *maintenance.Scheduler

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	DocumentHandler *handlers.DocumentHandler
	ChatHandler     *handlers.ChatHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if err := app.initMaintenance(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize maintenance: %w", err)
	}

	logger.Info().
		Str("embeddings", cfg.Embeddings.Provider).
		Str("generation", app.GenerationService.Name()).
		Bool("shared_corpus", cfg.Retrieval.SharedCorpus).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens storage and provisions API keys
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager

	// A missing keys file is not fatal: keys may already be in the store
	if err := a.StorageManager.LoadAPIKeysFromFile(context.Background(), a.Config.Auth.KeysFile); err != nil {
		a.Logger.Warn().Err(err).Str("path", a.Config.Auth.KeysFile).Msg("Failed to load API keys from file")
	}

	return nil
}

// initServices builds the service graph bottom-up
func (a *App) initServices() error {
	ctx := context.Background()

	embeddingService, err := embeddings.NewFromConfig(ctx, &a.Config.Embeddings, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create embedding service: %w", err)
	}
	a.EmbeddingService = embeddingService

	generationService, err := generation.NewFromConfig(ctx, &a.Config.Generation, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create generation service: %w", err)
	}
	a.GenerationService = generationService

	if a.Config.Moderation.Enabled {
		a.Moderator = moderation.NewService(a.Config.Moderation.BlockedTerms, a.Logger)
	} else {
		a.Logger.Warn().Msg("Content moderation disabled")
		a.Moderator = moderation.Disabled{}
	}

	a.SearchService = search.NewService(a.StorageManager.DocumentStorage(), a.Config.Retrieval.SharedCorpus, a.Logger)

	a.DocumentService = documents.NewService(
		a.StorageManager.DocumentStorage(),
		a.StorageManager.BlobStorage(),
		a.EmbeddingService,
		a.Moderator,
		extract.NewService(a.Logger),
		documents.Options{
			SnippetLength:   a.Config.Upload.SnippetLength,
			ChunkSize:       a.Config.Upload.ChunkSize,
			IngestTextFiles: a.Config.Upload.IngestTextFiles,
			IngestWorkers:   a.Config.Upload.IngestWorkers,
		},
		a.Logger,
	)

	a.ChatService = chat.NewService(
		a.EmbeddingService,
		a.SearchService,
		a.GenerationService,
		a.Moderator,
		chat.Options{
			TopK:             a.Config.Retrieval.TopK,
			MaxHistoryTokens: a.Config.Chat.MaxHistoryTokens,
			AskPrompt:        a.Config.Chat.AskPrompt,
		},
		a.Logger,
	)

	a.AuthService = auth.NewService(a.StorageManager.KeyValueStorage(), a.Logger)
	a.RateLimiter = ratelimit.NewService(
		a.StorageManager.KeyValueStorage(),
		a.Config.RateLimit.Quota,
		common.ParseDuration(a.Config.RateLimit.Window, ratelimit.DefaultWindow),
		a.Logger,
	)

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.DocumentHandler = handlers.NewDocumentHandler(a.DocumentService, a.Config.Upload.MaxBytes, a.Logger)
	a.ChatHandler = handlers.NewChatHandler(a.ChatService, a.Logger)
}

func (a *App) initMaintenance() error {
	if !a.Config.Maintenance.Enabled {
		return nil
	}

	scheduler, err := maintenance.NewDefault(a.Config.Maintenance.Schedule, a.RateLimiter, a.StorageManager, a.Logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	a.Scheduler = scheduler

	return nil
}

// Close stops background work and closes storage
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.StorageManager != nil {
		start := time.Now()
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Dur("duration", time.Since(start)).Msg("Storage closed")
	}

	return nil
}
