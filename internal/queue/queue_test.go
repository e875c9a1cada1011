package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/contentfabriek/contentpipe/internal/models"
	"github.com/contentfabriek/contentpipe/internal/planner"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A pooled second connection would see a different in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.QueueItem{},
		&models.SavedContent{},
		&models.PlanRun{},
		&models.SiteCMSConfig{},
		&models.CreditBalance{},
	))
	return db
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	return New(newTestDB(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func planItems(priorities ...int) []planner.ContentPlanItem {
	items := make([]planner.ContentPlanItem, 0, len(priorities))
	for i, p := range priorities {
		items = append(items, planner.ContentPlanItem{
			Title:              "titel " + string(rune('a'+i)),
			Type:               models.ContentTypeBlog,
			Keywords:           []string{"kw"},
			SearchIntent:       models.IntentInformational,
			Priority:           p,
			EstimatedWordCount: 1200,
		})
	}
	return items
}

func TestEnqueueAssignsMonotonicPositions(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, 1, nil, planItems(models.PriorityMedium, models.PriorityMedium), Options{}))
	require.NoError(t, q.Enqueue(ctx, 1, nil, planItems(models.PriorityMedium), Options{}))

	items, err := q.List(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, items, 3)

	// List is newest-position first.
	assert.Equal(t, int64(3), items[0].Position)
	assert.Equal(t, int64(2), items[1].Position)
	assert.Equal(t, int64(1), items[2].Position)
	for _, item := range items {
		assert.Equal(t, models.QueueStatusQueued, item.Status)
	}
}

func TestEnqueuePositionsAreUniquePerSite(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, 1, nil, planItems(models.PriorityMedium), Options{}))

	// A racing writer that computed the same base position is rejected by
	// the unique (site_id, position) index rather than silently making
	// the claim tie-break ambiguous.
	err := q.db.Exec(
		"INSERT INTO queue_items (site_id, title, content_type, priority, position, status, scheduled_for) VALUES (?, ?, ?, ?, ?, ?, ?)",
		1, "indringer", models.ContentTypeBlog, models.PriorityMedium, 1, models.QueueStatusQueued, time.Now().UTC(),
	).Error
	require.Error(t, err)

	// The same position on another site is fine.
	require.NoError(t, q.Enqueue(ctx, 2, nil, planItems(models.PriorityMedium), Options{}))
}

func TestEnqueueScheduledStatusForFutureBatches(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	future := time.Now().Add(24 * time.Hour)
	require.NoError(t, q.Enqueue(ctx, 1, nil, planItems(models.PriorityHigh), Options{ScheduledFor: &future}))

	items, err := q.List(ctx, 1, models.QueueStatusScheduled)
	require.NoError(t, err)
	require.Len(t, items, 1)

	// Not due yet.
	claimed, err := q.ClaimDueBatch(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestClaimDueBatchOrdersByPriorityThenPosition(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	// Inserted low, high, medium; claim must return high, medium, low.
	require.NoError(t, q.Enqueue(ctx, 1, nil, planItems(
		models.PriorityLow, models.PriorityHigh, models.PriorityMedium,
	), Options{}))

	claimed, err := q.ClaimDueBatch(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, claimed, 3)

	assert.Equal(t, models.PriorityHigh, claimed[0].Priority)
	assert.Equal(t, models.PriorityMedium, claimed[1].Priority)
	assert.Equal(t, models.PriorityLow, claimed[2].Priority)
	for _, item := range claimed {
		assert.Equal(t, models.QueueStatusProcessing, item.Status)
	}
}

func TestClaimDueBatchExclusivity(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, 1, nil, planItems(
		models.PriorityMedium, models.PriorityMedium, models.PriorityMedium,
		models.PriorityMedium, models.PriorityMedium,
	), Options{}))

	first, err := q.ClaimDueBatch(ctx, 1, 5)
	require.NoError(t, err)
	second, err := q.ClaimDueBatch(ctx, 1, 5)
	require.NoError(t, err)

	// The first claim drained the due set; a second claim sees nothing.
	assert.Len(t, first, 5)
	assert.Empty(t, second)

	seen := make(map[uint]bool)
	for _, item := range first {
		assert.False(t, seen[item.ID], "item %d claimed twice", item.ID)
		seen[item.ID] = true
	}
}

func TestClaimDueBatchRespectsLimitAndSite(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, 1, nil, planItems(
		models.PriorityMedium, models.PriorityMedium, models.PriorityMedium,
	), Options{}))
	require.NoError(t, q.Enqueue(ctx, 2, nil, planItems(models.PriorityHigh), Options{}))

	claimed, err := q.ClaimDueBatch(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)

	remaining, err := q.CountRemainingDue(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)

	otherSite, err := q.CountRemainingDue(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), otherSite)
}

func TestMarkCompletedIsTerminalAndIdempotent(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, 1, nil, planItems(models.PriorityMedium), Options{}))
	claimed, err := q.ClaimDueBatch(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	id := claimed[0].ID

	require.NoError(t, q.MarkCompleted(ctx, id, 42))

	items, err := q.List(ctx, 1, models.QueueStatusCompleted)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].SavedContentID)
	assert.Equal(t, uint(42), *items[0].SavedContentID)
	assert.NotNil(t, items[0].CompletedAt)

	// Re-marking a terminal item is a no-op, not an error.
	assert.NoError(t, q.MarkCompleted(ctx, id, 99))
	assert.NoError(t, q.MarkFailed(ctx, id, "late failure"))

	items, err = q.List(ctx, 1, models.QueueStatusCompleted)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, uint(42), *items[0].SavedContentID)
	assert.Empty(t, items[0].ErrorMessage)
}

func TestMarkCompletedRequiresProcessing(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, 1, nil, planItems(models.PriorityMedium), Options{}))
	items, err := q.List(ctx, 1, "")
	require.NoError(t, err)

	err = q.MarkCompleted(ctx, items[0].ID, 1)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestMarkFailedRecordsMessage(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, 1, nil, planItems(models.PriorityMedium), Options{}))
	claimed, err := q.ClaimDueBatch(ctx, 1, 1)
	require.NoError(t, err)

	require.NoError(t, q.MarkFailed(ctx, claimed[0].ID, "generation timed out"))

	items, err := q.List(ctx, 1, models.QueueStatusFailed)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "generation timed out", items[0].ErrorMessage)

	// Failed items are not due: no auto-retry.
	remaining, err := q.CountRemainingDue(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestRequeueFailedItem(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, 1, nil, planItems(models.PriorityMedium), Options{}))
	claimed, err := q.ClaimDueBatch(ctx, 1, 1)
	require.NoError(t, err)
	id := claimed[0].ID
	require.NoError(t, q.MarkFailed(ctx, id, "boom"))

	require.NoError(t, q.Requeue(ctx, id))

	items, err := q.List(ctx, 1, models.QueueStatusQueued)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Empty(t, items[0].ErrorMessage)

	// Only failed items can be requeued.
	assert.ErrorIs(t, q.Requeue(ctx, id), ErrIllegalTransition)
}

func TestResetToQueuedOnlyFromProcessing(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, 1, nil, planItems(models.PriorityMedium), Options{}))
	items, err := q.List(ctx, 1, "")
	require.NoError(t, err)
	assert.ErrorIs(t, q.ResetToQueued(ctx, items[0].ID), ErrIllegalTransition)

	claimed, err := q.ClaimDueBatch(ctx, 1, 1)
	require.NoError(t, err)
	require.NoError(t, q.ResetToQueued(ctx, claimed[0].ID))

	// The item is claimable again after the reset.
	claimed, err = q.ClaimDueBatch(ctx, 1, 1)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}
