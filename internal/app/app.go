// Package app wires configuration, storage, collaborator clients and the
// processor into a runnable application shared by the server and worker
// binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/contentfabriek/contentpipe/internal/bolcom"
	"github.com/contentfabriek/contentpipe/internal/config"
	"github.com/contentfabriek/contentpipe/internal/credits"
	"github.com/contentfabriek/contentpipe/internal/database"
	"github.com/contentfabriek/contentpipe/internal/events"
	"github.com/contentfabriek/contentpipe/internal/llm"
	"github.com/contentfabriek/contentpipe/internal/planner"
	"github.com/contentfabriek/contentpipe/internal/processor"
	"github.com/contentfabriek/contentpipe/internal/queue"
	"github.com/contentfabriek/contentpipe/internal/worker"
)

// App holds the assembled application components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *gorm.DB
	Queue     *queue.Queue
	Planner   *planner.Planner
	Processor *processor.Processor
	Events    *events.Publisher
}

// New builds the application: database with migrations, asynq client,
// collaborator clients and the processor.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	if err := database.RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := worker.InitClient(cfg.RedisURL); err != nil {
		return nil, fmt.Errorf("failed to init task client: %w", err)
	}

	publisher, err := events.NewPublisher(cfg.RedisURL)
	if err != nil {
		// Events are an observability surface; the pipeline runs without them.
		logger.Warn("Event publisher disabled", "error", err.Error())
		publisher = nil
	}

	generator := llm.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)

	var products bolcom.ProductSearcher
	if cfg.BolcomAPIKey != "" {
		products = bolcom.NewClient(cfg.BolcomAPIKey, cfg.BolcomBaseURL)
	} else {
		logger.Info("Bolcom enrichment disabled: no API key configured")
	}

	q := queue.New(db, logger)

	proc := processor.New(processor.Deps{
		DB:        db,
		Queue:     q,
		Generator: generator,
		Products:  products,
		Credits:   credits.NewStore(db),
		Events:    publisher,
		Rearm: func(_ context.Context, siteID uint, batchSize, chain int) error {
			return worker.EnqueueTick(worker.TickPayload{
				SiteID:    siteID,
				BatchSize: batchSize,
				Chain:     chain,
			}, processor.RearmCooldown)
		},
		Logger: logger,
	})

	return &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Queue:     q,
		Planner:   planner.New(generator, logger),
		Processor: proc,
		Events:    publisher,
	}, nil
}

// WorkerDeps adapts the app into the worker's dependency set.
func (a *App) WorkerDeps() worker.Deps {
	return worker.Deps{
		Config:    a.Config,
		DB:        a.DB,
		Queue:     a.Queue,
		Planner:   a.Planner,
		Processor: a.Processor,
		Events:    a.Events,
		Logger:    a.Logger,
	}
}

// Close releases the app's connections.
func (a *App) Close() {
	if err := worker.CloseClient(); err != nil {
		a.Logger.Error("Failed to close task client", "error", err.Error())
	}
	if err := a.Events.Close(); err != nil {
		a.Logger.Error("Failed to close event publisher", "error", err.Error())
	}
	if err := database.Close(a.DB); err != nil {
		a.Logger.Error("Failed to close database", "error", err.Error())
	}
}
