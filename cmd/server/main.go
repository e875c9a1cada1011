package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contentfabriek/contentpipe/internal/api"
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

	if cfg.EmbedWorker {
		stopWorker, err := worker.Start(application.WorkerDeps())
		if err != nil {
			logger.Error("Failed to start embedded worker", "error", err.Error())
			os.Exit(1)
		}
		defer stopWorker()

		stopScheduler, err := worker.StartScheduler(cfg)
		if err != nil {
			logger.Error("Failed to start scheduler", "error", err.Error())
			os.Exit(1)
		}
		defer stopScheduler()
	}

	router := api.NewRouter(application.DB, application.Queue, application.Processor)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Starting API server", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down server cleanly", "error", err.Error())
	}
}
