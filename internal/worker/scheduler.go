package worker

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/contentfabriek/contentpipe/internal/config"
	"github.com/contentfabriek/contentpipe/internal/logging"
)

// StartScheduler creates and starts an Asynq Scheduler that periodically
// arms a queue sweep. Returns a stop function for graceful shutdown.
func StartScheduler(cfg *config.Config) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	// Empty payload: the sweep handler queries all sites with due work.
	// Uniqueness prevents a duplicate sweep if the scheduler fires twice.
	task := asynq.NewTask(
		TaskQueueSweep,
		nil,
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.Unique(time.Minute),
	)

	entryID, err := scheduler.Register(cfg.TickSchedule, task)
	if err != nil {
		return nil, fmt.Errorf("failed to register queue sweep schedule: %w", err)
	}

	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info(
		"Scheduler started",
		"schedule", cfg.TickSchedule,
		"entry_id", entryID,
	)

	return func() { scheduler.Shutdown() }, nil
}
