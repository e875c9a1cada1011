package main

import (
	"os"

	"github.com/contentfabriek/contentpipe/internal/app"
	"github.com/contentfabriek/contentpipe/internal/config"
	"github.com/contentfabriek/contentpipe/internal/logging"
	"github.com/contentfabriek/contentpipe/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to start", "error", err.Error())
		os.Exit(1)
	}
	defer application.Close()

	stopScheduler, err := worker.StartScheduler(cfg)
	if err != nil {
		logger.Error("Failed to start scheduler", "error", err.Error())
		os.Exit(1)
	}
	defer stopScheduler()

	logger.Info("Starting worker", "env", cfg.Env, "tick_schedule", cfg.TickSchedule)
	if err := worker.Run(application.WorkerDeps()); err != nil {
		logger.Error("Worker stopped", "error", err.Error())
		os.Exit(1)
	}
}
