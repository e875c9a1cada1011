package worker

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskBuildPlan  = "plan:build"
	TaskQueueTick  = "queue:tick"
	TaskQueueSweep = "queue:sweep"
)

// BuildPlanPayload is the plan:build task payload. Queue options ride
// along because the PlanRun record only stores what the dashboard needs
// to display.
type BuildPlanPayload struct {
	PlanRunID     uint               `json:"plan_run_id"`
	TypeMix       map[string]float64 `json:"type_mix,omitempty"`
	AutoPublish   bool               `json:"auto_publish"`
	BolcomEnabled bool               `json:"bolcom_enabled"`
	ScheduledFor  *time.Time         `json:"scheduled_for,omitempty"`
}

// TickPayload is the queue:tick task payload. Chain counts how many
// ticks preceded this one in a self-chained sequence.
type TickPayload struct {
	SiteID    uint `json:"site_id"`
	BatchSize int  `json:"batch_size"`
	Chain     int  `json:"chain"`
}

// Package-level Asynq client (singleton)
var client *asynq.Client

// InitClient initializes the global Asynq client for task enqueueing.
// Must be called before any EnqueueX functions.
func InitClient(redisURL string) error {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return err
	}

	client = asynq.NewClient(opt)
	return nil
}

// CloseClient closes the Asynq client connection gracefully.
func CloseClient() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// EnqueueBuildPlan enqueues a planning run. Planning is not retried by
// the queue: a failed run is visible on its PlanRun record and the caller
// decides whether to start a new one.
func EnqueueBuildPlan(payload BuildPlanPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(
		TaskBuildPlan,
		data,
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Minute),
		asynq.Retention(24*time.Hour),
	)

	_, err = client.Enqueue(task)
	return err
}

// EnqueueTick enqueues one queue tick for a site, optionally delayed.
// Ticks are not retried: the due backlog is durable and the periodic
// sweep will reach it again.
func EnqueueTick(payload TickPayload, delay time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.MaxRetry(0),
		asynq.Timeout(30 * time.Minute),
		asynq.Retention(24 * time.Hour),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	task := asynq.NewTask(TaskQueueTick, data, opts...)
	_, err = client.Enqueue(task)
	return err
}
