// -----------------------------------------------------------------------
// App - Application wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/handlers"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/jobs"
	"github.com/ternarybob/indago/internal/providers/marketdata"
	"github.com/ternarybob/indago/internal/services/events"
	badgerstorage "github.com/ternarybob/indago/internal/storage/badger"
	"github.com/ternarybob/indago/internal/workers/research"
	"github.com/ternarybob/indago/internal/workers/screening"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService

	Executor   *jobs.Executor
	Registry   *jobs.Registry
	JobService *jobs.Service

	MarketData      *marketdata.Client
	ScreeningWorker *screening.Worker
	ResearchWorker  *research.Worker

	// HTTP handlers
	APIHandler *handlers.APIHandler
	JobHandler *handlers.JobHandler
	WSHandler  *handlers.WebSocketHandler
	Subscriber *handlers.EventSubscriber

	cron *cron.Cron
}

// New wires the full application: storage, events, the execution engine, the
// work-function workers and the HTTP handlers. Interrupted-job recovery runs
// before the executor accepts any work.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	// Storage
	storageManager, err := badgerstorage.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = storageManager

	// Events and push channel
	a.EventService = events.NewService(logger)
	a.WSHandler = handlers.NewWebSocketHandler(logger, &config.WebSocket)
	a.Subscriber = handlers.NewEventSubscriber(a.WSHandler, a.EventService, logger)

	// Execution engine
	a.Executor = jobs.NewExecutor(config.Jobs.Workers, config.Jobs.QueueSize, logger)
	a.JobService = jobs.NewService(storageManager.JobStorage(), a.EventService, a.Executor, logger, config.Jobs.RetainJobs)

	// Jobs left running by a previous process can never finish
	if count, err := a.JobService.RecoverInterrupted(context.Background()); err != nil {
		return nil, fmt.Errorf("startup recovery failed: %w", err)
	} else if count > 0 {
		logger.Warn().Int("count", count).Msg("Recovered interrupted jobs from previous run")
	}

	a.Executor.Start()

	// Workers
	a.MarketData, err = marketdata.NewClient(&config.MarketData, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize market data client: %w", err)
	}

	a.Registry = jobs.NewRegistry()

	a.ScreeningWorker = screening.NewWorker(a.MarketData, config.Screening.StrategiesDir, logger)
	if err := a.Registry.Register("screening", a.ScreeningWorker.Factory()); err != nil {
		return nil, err
	}

	if config.Claude.APIKey != "" {
		analyzer, err := research.NewClaudeAnalyzer(&config.Claude, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize analyzer: %w", err)
		}
		a.ResearchWorker = research.NewWorker(a.MarketData, a.MarketData, analyzer, logger)
		if err := a.Registry.Register("research", a.ResearchWorker.Factory()); err != nil {
			return nil, err
		}
	} else {
		logger.Warn().Msg("No Anthropic API key configured - research jobs disabled")
	}

	// HTTP handlers
	a.APIHandler = handlers.NewAPIHandler(logger)
	a.JobHandler = handlers.NewJobHandler(a.JobService, a.Registry, logger)

	// Periodic retention cleanup
	if config.Jobs.CleanupSchedule != "" {
		a.cron = cron.New()
		_, err := a.cron.AddFunc(config.Jobs.CleanupSchedule, func() {
			if deleted, err := a.JobService.Cleanup(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("Scheduled retention cleanup failed")
			} else if deleted > 0 {
				logger.Info().Int("deleted", deleted).Msg("Scheduled retention cleanup completed")
			}
		})
		if err != nil {
			return nil, fmt.Errorf("invalid cleanup schedule '%s': %w", config.Jobs.CleanupSchedule, err)
		}
		a.cron.Start()
	}

	logger.Info().
		Int("workers", config.Jobs.Workers).
		Int("retain_jobs", config.Jobs.RetainJobs).
		Strs("kinds", a.Registry.Kinds()).
		Msg("Application initialized")

	return a, nil
}

// Close shuts down the application in reverse dependency order
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application")

	if a.cron != nil {
		a.cron.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.Executor.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Executor shutdown timed out")
	}

	if err := a.EventService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close event service")
	}

	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close storage")
		return err
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
