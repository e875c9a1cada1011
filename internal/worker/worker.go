package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/contentfabriek/contentpipe/internal/config"
	"github.com/contentfabriek/contentpipe/internal/events"
	"github.com/contentfabriek/contentpipe/internal/models"
	"github.com/contentfabriek/contentpipe/internal/planner"
	"github.com/contentfabriek/contentpipe/internal/processor"
	"github.com/contentfabriek/contentpipe/internal/queue"
)

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger interface
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

func (a *asynqLoggerAdapter) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

// Deps wires the worker's collaborators.
type Deps struct {
	Config    *config.Config
	DB        *gorm.DB
	Queue     *queue.Queue
	Planner   *planner.Planner
	Processor *processor.Processor
	Events    *events.Publisher
	Logger    *slog.Logger
}

// Run starts the Asynq worker server and blocks until shutdown signal.
// Use this for standalone worker mode.
func Run(deps Deps) error {
	srv, mux, err := newServer(deps)
	if err != nil {
		return err
	}
	return srv.Run(mux)
}

// Start starts the Asynq worker in non-blocking mode and returns a stop
// function. Use this for embedded mode so the caller can coordinate
// shutdown.
func Start(deps Deps) (stop func(), err error) {
	srv, mux, err := newServer(deps)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() { srv.Shutdown() }, nil
}

func newServer(deps Deps) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(deps.Config.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Concurrency 2: ticks already bound their own external-API load;
	// this only allows planning and tick tasks to overlap.
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     2,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(deps.Logger)),
			Logger:          &asynqLoggerAdapter{logger: deps.Logger},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskBuildPlan, handleBuildPlan(deps))
	mux.HandleFunc(TaskQueueTick, handleQueueTick(deps))
	mux.HandleFunc(TaskQueueSweep, handleQueueSweep(deps))

	deps.Logger.Info("Worker starting", "redis", deps.Config.RedisURL)
	return srv, mux, nil
}

// handleBuildPlan runs one planning run: build the exclusion index, ask
// the planner for a deduplicated topical map and bulk-enqueue the
// accepted items. Planning failure is absorbed into the PlanRun record;
// nothing is enqueued.
func handleBuildPlan(deps Deps) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload BuildPlanPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		var run models.PlanRun
		if err := deps.DB.WithContext(ctx).First(&run, payload.PlanRunID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				deps.Logger.Error("Plan run not found", "plan_run_id", payload.PlanRunID)
				return fmt.Errorf("plan run not found: %w", asynq.SkipRetry)
			}
			return fmt.Errorf("failed to fetch plan run: %w", err)
		}

		deps.Logger.Info("Processing plan:build task",
			"plan_run_id", run.ID,
			"site_id", run.SiteID,
			"target_count", run.TargetCount,
		)

		if err := deps.DB.Model(&run).Update("status", models.PlanRunStatusProcessing).Error; err != nil {
			return fmt.Errorf("failed to mark plan run processing: %w", err)
		}

		idx, err := planner.LoadSiteIndex(ctx, deps.DB, run.SiteID)
		if err != nil {
			return failPlanRun(ctx, deps, &run, fmt.Errorf("failed to build exclusion index: %w", err))
		}

		plan, err := deps.Planner.Generate(ctx, planner.Request{
			SiteID:      run.SiteID,
			Niche:       run.Niche,
			Description: run.Description,
			Language:    run.Language,
			TargetCount: run.TargetCount,
			TypeMix:     payload.TypeMix,
		}, idx)
		if err != nil {
			return failPlanRun(ctx, deps, &run, err)
		}

		err = deps.Queue.Enqueue(ctx, run.SiteID, &run.ID, plan.Items, queue.Options{
			AutoPublish:   payload.AutoPublish,
			BolcomEnabled: payload.BolcomEnabled,
			ScheduledFor:  payload.ScheduledFor,
		})
		if err != nil {
			return failPlanRun(ctx, deps, &run, fmt.Errorf("failed to enqueue plan items: %w", err))
		}

		if err := deps.DB.Model(&run).Updates(map[string]interface{}{
			"status":             models.PlanRunStatusCompleted,
			"requested_count":    len(plan.Items) + plan.DuplicatesRemoved,
			"accepted_count":     len(plan.Items),
			"duplicates_removed": plan.DuplicatesRemoved,
			"error_message":      "",
		}).Error; err != nil {
			return fmt.Errorf("failed to update plan run: %w", err)
		}

		publishEvent(ctx, deps, events.Event{
			Type:      events.EventPlanCompleted,
			SiteID:    run.SiteID,
			PlanRunID: run.PublicID,
		})

		// Kick the queue so generation starts without waiting for the
		// periodic sweep. Scheduled batches stay dormant until due.
		if payload.ScheduledFor == nil && len(plan.Items) > 0 {
			if err := EnqueueTick(TickPayload{SiteID: run.SiteID, BatchSize: deps.Config.TickBatchSize}, 0); err != nil {
				deps.Logger.Error("Failed to enqueue initial tick", "site_id", run.SiteID, "error", err.Error())
			}
		}

		deps.Logger.Info("Plan run completed",
			"plan_run_id", run.ID,
			"accepted", len(plan.Items),
			"duplicates_removed", plan.DuplicatesRemoved,
		)
		return nil
	}
}

func failPlanRun(ctx context.Context, deps Deps, run *models.PlanRun, cause error) error {
	if err := deps.DB.Model(run).Updates(map[string]interface{}{
		"status":        models.PlanRunStatusFailed,
		"error_message": cause.Error(),
	}).Error; err != nil {
		deps.Logger.Error("Failed to record plan run failure",
			"plan_run_id", run.ID,
			"error", err.Error(),
		)
	}
	publishEvent(ctx, deps, events.Event{
		Type:         events.EventPlanFailed,
		SiteID:       run.SiteID,
		PlanRunID:    run.PublicID,
		ErrorMessage: cause.Error(),
	})
	deps.Logger.Error("Plan run failed",
		"plan_run_id", run.ID,
		"error", cause.Error(),
	)
	// The failure is recorded on the run; retrying the task would start
	// a duplicate planning call, so the task itself succeeds-with-error.
	return fmt.Errorf("plan run failed: %w", asynq.SkipRetry)
}

// handleQueueTick executes one processor tick. Per-item failures live in
// item statuses; the task only errors when the tick cannot run at all.
func handleQueueTick(deps Deps) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload TickPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		report, err := deps.Processor.Run(ctx, payload.SiteID, payload.BatchSize, payload.Chain)
		if err != nil {
			return fmt.Errorf("queue tick failed: %w", err)
		}

		deps.Logger.Info("Queue tick task done",
			"site_id", payload.SiteID,
			"processed", report.Processed,
			"failed", report.Failed,
			"remaining", report.Remaining,
		)
		return nil
	}
}

// handleQueueSweep fans the periodic schedule out into one tick per site
// with due work. Fresh chains start at zero.
func handleQueueSweep(deps Deps) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var siteIDs []uint
		err := deps.DB.WithContext(ctx).
			Model(&models.QueueItem{}).
			Distinct("site_id").
			Where("status IN ? AND scheduled_for <= ?",
				[]string{models.QueueStatusQueued, models.QueueStatusScheduled},
				time.Now().UTC(),
			).
			Pluck("site_id", &siteIDs).Error
		if err != nil {
			return fmt.Errorf("failed to find sites with due items: %w", err)
		}

		for _, siteID := range siteIDs {
			if err := EnqueueTick(TickPayload{SiteID: siteID, BatchSize: deps.Config.TickBatchSize}, 0); err != nil {
				deps.Logger.Error("Failed to enqueue sweep tick", "site_id", siteID, "error", err.Error())
			}
		}

		deps.Logger.Info("Queue sweep done", "sites", len(siteIDs))
		return nil
	}
}

func publishEvent(ctx context.Context, deps Deps, event events.Event) {
	if err := deps.Events.Publish(ctx, event); err != nil {
		deps.Logger.Warn("Failed to publish event", "type", event.Type, "error", err.Error())
	}
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)

		if retried >= maxRetry {
			logger.Error(
				"Task moved to dead letter queue (all retries exhausted)",
				"task_type", task.Type(),
				"payload", string(task.Payload()),
			)
		}
	}
}
