// Package queue owns the durable content backlog. Every QueueItem status
// transition goes through this package so the state machine's legality is
// enforced in one place rather than by caller discipline.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contentfabriek/contentpipe/internal/models"
	"github.com/contentfabriek/contentpipe/internal/planner"
)

// ErrIllegalTransition is returned for transitions the state machine does
// not allow (e.g. completing an item that was never claimed).
var ErrIllegalTransition = errors.New("illegal queue status transition")

// Options apply to a whole enqueued batch.
type Options struct {
	AutoPublish   bool
	BolcomEnabled bool
	ScheduledFor  *time.Time
}

// Queue is the gorm-backed content queue.
type Queue struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New creates a Queue.
func New(db *gorm.DB, logger *slog.Logger) *Queue {
	return &Queue{db: db, logger: logger}
}

// Enqueue bulk-inserts accepted plan items as queue entries. Position
// continues monotonically from the site's current maximum; items with a
// future ScheduledFor enter as scheduled, everything else as queued.
func (q *Queue) Enqueue(ctx context.Context, siteID uint, planRunID *uint, items []planner.ContentPlanItem, opts Options) error {
	if len(items) == 0 {
		return nil
	}

	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The highest-position row is read under a row lock so two racing
		// enqueues for the same site serialize instead of computing the
		// same base position. The unique (site_id, position) index catches
		// the first-insert race a row lock cannot cover.
		var maxPosition int64
		sel := tx.Where("site_id = ?", siteID).Order("position DESC")
		if tx.Dialector.Name() == "postgres" {
			sel = sel.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var last models.QueueItem
		err := sel.Take(&last).Error
		switch {
		case err == nil:
			maxPosition = last.Position
		case errors.Is(err, gorm.ErrRecordNotFound):
			maxPosition = 0
		default:
			return fmt.Errorf("failed to read max position: %w", err)
		}

		status := models.QueueStatusQueued
		scheduledFor := time.Now().UTC()
		if opts.ScheduledFor != nil {
			status = models.QueueStatusScheduled
			scheduledFor = opts.ScheduledFor.UTC()
		}

		rows := make([]models.QueueItem, 0, len(items))
		for i, item := range items {
			keywords, err := json.Marshal(item.Keywords)
			if err != nil {
				return fmt.Errorf("failed to marshal keywords for %q: %w", item.Title, err)
			}
			rows = append(rows, models.QueueItem{
				SiteID:             siteID,
				PlanRunID:          planRunID,
				Title:              item.Title,
				ContentType:        item.Type,
				Category:           item.Category,
				Keywords:           datatypes.JSON(keywords),
				SearchIntent:       item.SearchIntent,
				EstimatedWordCount: item.EstimatedWordCount,
				ProductKeyword:     item.ProductKeyword,
				Priority:           item.Priority,
				Position:           maxPosition + int64(i) + 1,
				Status:             status,
				ScheduledFor:       scheduledFor,
				AutoPublish:        opts.AutoPublish,
				BolcomEnabled:      opts.BolcomEnabled,
			})
		}

		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert queue items: %w", err)
		}

		q.logger.Info("Enqueued content items",
			"site_id", siteID,
			"count", len(rows),
			"status", status,
		)
		return nil
	})
}

// ClaimDueBatch atomically selects up to limit due items for the site,
// ordered by priority descending then position ascending, and marks them
// processing inside the same transaction. Row locks with SKIP LOCKED make
// two racing claims partition the due set instead of double-claiming.
func (q *Queue) ClaimDueBatch(ctx context.Context, siteID uint, limit int) ([]models.QueueItem, error) {
	if limit < 1 {
		return nil, nil
	}

	var claimed []models.QueueItem
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sel := tx.
			Where("site_id = ? AND status IN ? AND scheduled_for <= ?",
				siteID,
				[]string{models.QueueStatusQueued, models.QueueStatusScheduled},
				time.Now().UTC(),
			).
			Order("priority DESC, position ASC, id ASC").
			Limit(limit)
		if tx.Dialector.Name() == "postgres" {
			sel = sel.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := sel.Find(&claimed).Error; err != nil {
			return fmt.Errorf("failed to select due items: %w", err)
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]uint, len(claimed))
		for i, item := range claimed {
			ids[i] = item.ID
		}
		err := tx.Model(&models.QueueItem{}).
			Where("id IN ?", ids).
			Update("status", models.QueueStatusProcessing).Error
		if err != nil {
			return fmt.Errorf("failed to mark batch processing: %w", err)
		}
		for i := range claimed {
			claimed[i].Status = models.QueueStatusProcessing
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkCompleted transitions a processing item to completed and records
// the saved content reference. Re-marking a terminal item is a no-op;
// completing an item that is not processing is illegal.
func (q *Queue) MarkCompleted(ctx context.Context, id uint, savedContentID uint) error {
	now := time.Now().UTC()
	return q.transition(ctx, id, map[string]interface{}{
		"status":           models.QueueStatusCompleted,
		"completed_at":     now,
		"saved_content_id": savedContentID,
		"error_message":    "",
	})
}

// MarkFailed transitions a processing item to failed with a
// human-readable error. Failed items are not auto-retried.
func (q *Queue) MarkFailed(ctx context.Context, id uint, errorMessage string) error {
	return q.transition(ctx, id, map[string]interface{}{
		"status":        models.QueueStatusFailed,
		"error_message": errorMessage,
	})
}

func (q *Queue) transition(ctx context.Context, id uint, updates map[string]interface{}) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.QueueItem
		if err := tx.First(&item, id).Error; err != nil {
			return fmt.Errorf("queue item %d not found: %w", id, err)
		}
		if item.Terminal() {
			// Idempotent: re-marking a terminal item is not an error.
			return nil
		}
		if item.Status != models.QueueStatusProcessing {
			return fmt.Errorf("item %d is %s, not processing: %w", id, item.Status, ErrIllegalTransition)
		}
		return tx.Model(&item).Updates(updates).Error
	})
}

// ResetToQueued is the single soft reset outside the happy path: it puts
// a processing item back to queued, e.g. after an operator intervention.
func (q *Queue) ResetToQueued(ctx context.Context, id uint) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.QueueItem
		if err := tx.First(&item, id).Error; err != nil {
			return fmt.Errorf("queue item %d not found: %w", id, err)
		}
		if item.Status != models.QueueStatusProcessing {
			return fmt.Errorf("item %d is %s, not processing: %w", id, item.Status, ErrIllegalTransition)
		}
		return tx.Model(&item).Updates(map[string]interface{}{
			"status":        models.QueueStatusQueued,
			"scheduled_for": time.Now().UTC(),
		}).Error
	})
}

// Requeue puts a failed item back in the queue for another attempt. This
// is the manual re-enqueue action; the processor itself never retries.
func (q *Queue) Requeue(ctx context.Context, id uint) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.QueueItem
		if err := tx.First(&item, id).Error; err != nil {
			return fmt.Errorf("queue item %d not found: %w", id, err)
		}
		if item.Status != models.QueueStatusFailed {
			return fmt.Errorf("item %d is %s, not failed: %w", id, item.Status, ErrIllegalTransition)
		}
		return tx.Model(&item).Updates(map[string]interface{}{
			"status":        models.QueueStatusQueued,
			"scheduled_for": time.Now().UTC(),
			"error_message": "",
			"completed_at":  nil,
		}).Error
	})
}

// CountRemainingDue returns how many items are still due for the site.
// The processor uses it to decide whether to arm a follow-up tick.
func (q *Queue) CountRemainingDue(ctx context.Context, siteID uint) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("site_id = ? AND status IN ? AND scheduled_for <= ?",
			siteID,
			[]string{models.QueueStatusQueued, models.QueueStatusScheduled},
			time.Now().UTC(),
		).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count due items: %w", err)
	}
	return count, nil
}

// List returns the site's queue items, optionally filtered by status,
// newest position first.
func (q *Queue) List(ctx context.Context, siteID uint, status string) ([]models.QueueItem, error) {
	query := q.db.WithContext(ctx).Where("site_id = ?", siteID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var items []models.QueueItem
	if err := query.Order("position DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	return items, nil
}
