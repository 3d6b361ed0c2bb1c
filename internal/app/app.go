// -----------------------------------------------------------------------
// App - Dependency wiring for the harvester service
// -----------------------------------------------------------------------

package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/campusworks/harvester/internal/common"
	"github.com/campusworks/harvester/internal/handlers"
	"github.com/campusworks/harvester/internal/interfaces"
	"github.com/campusworks/harvester/internal/jobs"
	"github.com/campusworks/harvester/internal/scraper"
	storagebadger "github.com/campusworks/harvester/internal/storage/badger"
	"github.com/campusworks/harvester/internal/uploader"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Pipeline components
	TaskRunner   interfaces.TaskRunner
	UploadEngine interfaces.UploadEngine
	JobService   *jobs.Service

	// HTTP handlers
	ScrapeHandler *handlers.ScrapeHandler
	APIHandler    *handlers.APIHandler
}

// New creates the application with all dependencies wired
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storageManager, err := storagebadger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	runner := scraper.NewRunner(&config.Scraper, config.ScraperTimeout(), logger)

	// The upload engine is optional: without an object store URL the
	// pipeline still runs and records the upload stage as skipped
	var uploadEngine interfaces.UploadEngine
	if config.Uploader.URL != "" {
		client := uploader.NewClient(config.Uploader.URL, config.Uploader.Key,
			uploader.WithLogger(logger),
			uploader.WithRateLimit(config.Uploader.Workers),
		)
		uploadEngine = uploader.NewEngine(&config.Uploader, client, logger)
	} else {
		logger.Warn().Msg("No object store URL configured; uploads will be skipped")
	}

	jobService := jobs.NewService(storageManager.JobStorage(), runner, uploadEngine, config, logger)

	app := &App{
		Config:         config,
		Logger:         logger,
		StorageManager: storageManager,
		TaskRunner:     runner,
		UploadEngine:   uploadEngine,
		JobService:     jobService,
		ScrapeHandler:  handlers.NewScrapeHandler(jobService, logger),
		APIHandler:     handlers.NewAPIHandler(),
	}

	if err := jobService.Monitor().Start(); err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to start stall monitor: %w", err)
	}

	logger.Info().
		Str("storage_path", config.Storage.Badger.Path).
		Str("script_dir", config.Scraper.ScriptDir).
		Bool("uploader_enabled", uploadEngine != nil).
		Msg("Application initialized")

	return app, nil
}

// Close shuts down application components in reverse dependency order
func (a *App) Close() error {
	a.JobService.Monitor().Stop()

	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Failed to close storage")
		return err
	}

	a.Logger.Info().Msg("Application shut down")
	return nil
}
