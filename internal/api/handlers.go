// Package api is the HTTP surface over planning and the content queue.
// Authentication and tenancy resolution happen upstream; handlers trust
// the site identifier in the path.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/contentfabriek/contentpipe/internal/models"
	"github.com/contentfabriek/contentpipe/internal/processor"
	"github.com/contentfabriek/contentpipe/internal/queue"
	"github.com/contentfabriek/contentpipe/internal/worker"
)

type createPlanRequest struct {
	Niche         string             `json:"niche" binding:"required"`
	Description   string             `json:"description"`
	Language      string             `json:"language"`
	TargetCount   int                `json:"target_count" binding:"required,min=1"`
	TypeMix       map[string]float64 `json:"type_mix"`
	AutoPublish   bool               `json:"auto_publish"`
	BolcomEnabled bool               `json:"bolcom_enabled"`
	ScheduledFor  *time.Time         `json:"scheduled_for"`
}

// CreatePlanHandler creates a PlanRun and enqueues the planning task.
func CreatePlanHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		siteID, ok := siteIDParam(c)
		if !ok {
			return
		}

		var req createPlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// One planning run at a time per site: a racing second request
		// gets the in-flight run back instead of a duplicate.
		var existing models.PlanRun
		result := db.Where("site_id = ? AND status IN ?", siteID,
			[]string{models.PlanRunStatusPending, models.PlanRunStatusProcessing}).
			First(&existing)
		if result.Error == nil {
			c.JSON(http.StatusConflict, planRunResponse(existing))
			return
		}

		language := req.Language
		if language == "" {
			language = "Dutch"
		}
		run := models.PlanRun{
			PublicID:    uuid.New().String(),
			SiteID:      siteID,
			Niche:       req.Niche,
			Description: req.Description,
			Language:    language,
			TargetCount: req.TargetCount,
			Status:      models.PlanRunStatusPending,
		}
		if err := db.Create(&run).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create plan run"})
			return
		}

		err := worker.EnqueueBuildPlan(worker.BuildPlanPayload{
			PlanRunID:     run.ID,
			TypeMix:       req.TypeMix,
			AutoPublish:   req.AutoPublish,
			BolcomEnabled: req.BolcomEnabled,
			ScheduledFor:  req.ScheduledFor,
		})
		if err != nil {
			db.Model(&run).Updates(map[string]interface{}{
				"status":        models.PlanRunStatusFailed,
				"error_message": "Failed to enqueue planning task",
			})
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue planning task"})
			return
		}

		c.JSON(http.StatusAccepted, planRunResponse(run))
	}
}

// GetPlanHandler returns one PlanRun by public id.
func GetPlanHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var run models.PlanRun
		err := db.Where("public_id = ?", c.Param("id")).First(&run).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "plan run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load plan run"})
			return
		}
		c.JSON(http.StatusOK, planRunResponse(run))
	}
}

type tickRequest struct {
	BatchSize int `json:"batch_size"`
}

// TickHandler runs one queue tick inline and returns the aggregate
// report. Claim atomicity makes a manual tick safe to race against a
// scheduled one.
func TickHandler(proc *processor.Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		siteID, ok := siteIDParam(c)
		if !ok {
			return
		}

		var req tickRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		report, err := proc.Run(c.Request.Context(), siteID, req.BatchSize, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// ListQueueHandler returns the site's queue items, optionally filtered
// by a ?status= query.
func ListQueueHandler(q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		siteID, ok := siteIDParam(c)
		if !ok {
			return
		}

		status := c.Query("status")
		switch status {
		case "", models.QueueStatusQueued, models.QueueStatusScheduled,
			models.QueueStatusProcessing, models.QueueStatusCompleted, models.QueueStatusFailed:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}

		items, err := q.List(c.Request.Context(), siteID, status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list queue items"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
	}
}

// RequeueHandler puts a failed item back in the queue.
func RequeueHandler(q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
			return
		}

		if err := q.Requeue(c.Request.Context(), uint(id)); err != nil {
			if errors.Is(err, queue.ErrIllegalTransition) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": models.QueueStatusQueued})
	}
}

func siteIDParam(c *gin.Context) (uint, bool) {
	siteID, err := strconv.ParseUint(c.Param("siteID"), 10, 64)
	if err != nil || siteID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid site id"})
		return 0, false
	}
	return uint(siteID), true
}

func planRunResponse(run models.PlanRun) gin.H {
	return gin.H{
		"id":                 run.PublicID,
		"site_id":            run.SiteID,
		"niche":              run.Niche,
		"language":           run.Language,
		"target_count":       run.TargetCount,
		"status":             run.Status,
		"requested_count":    run.RequestedCount,
		"accepted_count":     run.AcceptedCount,
		"duplicates_removed": run.DuplicatesRemoved,
		"error_message":      run.ErrorMessage,
		"created_at":         run.CreatedAt,
	}
}
