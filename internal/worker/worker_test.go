package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/contentfabriek/contentpipe/internal/config"
	"github.com/contentfabriek/contentpipe/internal/models"
	"github.com/contentfabriek/contentpipe/internal/planner"
	"github.com/contentfabriek/contentpipe/internal/queue"
)

type fakeGenerator struct {
	response string
	err      error
}

func (f *fakeGenerator) Complete(context.Context, string, int, float64) (string, error) {
	return f.response, f.err
}

const buildPlanResponse = `{
  "categories": [
    {
      "name": "Koffie",
      "cluster_items": [
        {"title": "Beste bonen voor espresso", "type": "blog", "keywords": ["espresso bonen"]}
      ]
    }
  ]
}`

func newBuildPlanDeps(t *testing.T, gen *fakeGenerator) (Deps, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.PlanRun{}, &models.QueueItem{}, &models.SavedContent{}))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return Deps{
		Config:  &config.Config{TickBatchSize: 3},
		DB:      db,
		Queue:   queue.New(db, log),
		Planner: planner.New(gen, log),
		Logger:  log,
	}, db
}

func buildPlanTask(t *testing.T, payload BuildPlanPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskBuildPlan, data)
}

func TestHandleBuildPlanCompletesScheduledRun(t *testing.T) {
	deps, db := newBuildPlanDeps(t, &fakeGenerator{response: buildPlanResponse})
	run := models.PlanRun{PublicID: "11111111-1111-1111-1111-111111111111", SiteID: 1, Niche: "koffie", Language: "Dutch", TargetCount: 1, Status: models.PlanRunStatusPending}
	require.NoError(t, db.Create(&run).Error)

	future := time.Now().Add(24 * time.Hour)
	err := handleBuildPlan(deps)(context.Background(), buildPlanTask(t, BuildPlanPayload{
		PlanRunID:    run.ID,
		ScheduledFor: &future,
	}))
	require.NoError(t, err)

	require.NoError(t, db.First(&run, run.ID).Error)
	assert.Equal(t, models.PlanRunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.AcceptedCount)
	assert.Equal(t, 0, run.DuplicatesRemoved)
	assert.Empty(t, run.ErrorMessage)

	items, err := deps.Queue.List(context.Background(), 1, models.QueueStatusScheduled)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Beste bonen voor espresso", items[0].Title)
}

func TestHandleBuildPlanRecordsFailureAndSkipsRetry(t *testing.T) {
	deps, db := newBuildPlanDeps(t, &fakeGenerator{err: errors.New("collaborator unavailable")})
	run := models.PlanRun{PublicID: "22222222-2222-2222-2222-222222222222", SiteID: 1, Niche: "koffie", TargetCount: 5, Status: models.PlanRunStatusPending}
	require.NoError(t, db.Create(&run).Error)

	err := handleBuildPlan(deps)(context.Background(), buildPlanTask(t, BuildPlanPayload{PlanRunID: run.ID}))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	require.NoError(t, db.First(&run, run.ID).Error)
	assert.Equal(t, models.PlanRunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "collaborator unavailable")

	var count int64
	require.NoError(t, db.Model(&models.QueueItem{}).Count(&count).Error)
	assert.Zero(t, count, "a failed planning run must enqueue nothing")
}

func TestHandleBuildPlanUnknownRunSkipsRetry(t *testing.T) {
	deps, _ := newBuildPlanDeps(t, &fakeGenerator{response: buildPlanResponse})

	err := handleBuildPlan(deps)(context.Background(), buildPlanTask(t, BuildPlanPayload{PlanRunID: 999}))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
