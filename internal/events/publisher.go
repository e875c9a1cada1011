// Package events publishes queue lifecycle events to a Redis Stream for
// the dashboard side of the platform. A nil *Publisher is a no-op, so a
// deployment without Redis events configured degrades gracefully.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream and schema constants
const (
	StreamContentEvents = "content:events"
	SchemaVersionV1     = "v1"
)

// Event type constants
const (
	EventItemCompleted = "item:completed"
	EventItemFailed    = "item:failed"
	EventPlanCompleted = "plan:completed"
	EventPlanFailed    = "plan:failed"
)

// Event is one lifecycle notification.
type Event struct {
	Type           string `json:"type"`
	SiteID         uint   `json:"site_id"`
	QueueItemID    uint   `json:"queue_item_id,omitempty"`
	PlanRunID      string `json:"plan_run_id,omitempty"`
	Title          string `json:"title,omitempty"`
	SavedContentID uint   `json:"saved_content_id,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// Publisher publishes events to Redis Streams.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher creates a Publisher from a Redis URL.
func NewPublisher(redisURL string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &Publisher{rdb: redis.NewClient(opts)}, nil
}

// Publish appends one event to the stream. Nil receiver is a no-op.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if p == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	result := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamContentEvents,
		MaxLen: 10000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload":        string(payload),
			"published_at":   time.Now().Unix(),
			"schema_version": SchemaVersionV1,
		},
	})
	if result.Err() != nil {
		return fmt.Errorf("failed to publish to stream: %w", result.Err())
	}
	return nil
}

// Close closes the Redis client connection. Nil receiver is a no-op.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.rdb.Close()
}
