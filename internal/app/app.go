package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stash/internal/common"
	"github.com/ternarybob/stash/internal/handlers"
	"github.com/ternarybob/stash/internal/jobs"
	"github.com/ternarybob/stash/internal/services/auth"
	"github.com/ternarybob/stash/internal/services/monitor"
	"github.com/ternarybob/stash/internal/services/users"
	"github.com/ternarybob/stash/internal/storage/blobs"
	"github.com/ternarybob/stash/internal/storage/sqlite"
)

// App wires configuration, storage, services and handlers together.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	Blobs    *blobs.Store
	Database *sqlite.Manager

	// Core
	Queue *jobs.Queue

	// Services
	AuthService *auth.Service
	UserService *users.Service
	Monitor     *monitor.Service

	// Handlers
	StoreHandler *handlers.StoreHandler
	UserHandler  *handlers.UserHandler
	APIHandler   *handlers.APIHandler
}

// New initializes the full application in dependency order.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	blobStore, err := blobs.New(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}
	a.Blobs = blobStore

	database, err := sqlite.NewManager(context.Background(), logger, &config.Database)
	if err != nil {
		blobStore.Close()
		return nil, err
	}
	a.Database = database

	a.Queue = jobs.NewQueue(config, logger, blobStore, database.MetadataStore())
	a.Queue.Start()

	a.AuthService = auth.New(config, database.UserStore(), logger)
	a.UserService = users.New(database.UserStore(), logger)
	a.Monitor = monitor.New(config, logger)
	a.Monitor.Start()

	a.StoreHandler = handlers.NewStoreHandler(a.Queue, logger)
	a.UserHandler = handlers.NewUserHandler(a.UserService, a.AuthService, logger)
	a.APIHandler = handlers.NewAPIHandler(a.Queue, a.Monitor, logger)

	logger.Info().Msg("Application initialized")
	return a, nil
}

// Close shuts components down in reverse order of initialization.
func (a *App) Close() {
	if a.Monitor != nil {
		a.Monitor.Close()
	}
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.Database != nil {
		if err := a.Database.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Database close failed")
		}
	}
	if a.Blobs != nil {
		if err := a.Blobs.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Blob store close failed")
		}
	}
	a.Logger.Info().Msg("Application stopped")
}
