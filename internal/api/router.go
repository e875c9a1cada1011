package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/contentfabriek/contentpipe/internal/health"
	"github.com/contentfabriek/contentpipe/internal/processor"
	"github.com/contentfabriek/contentpipe/internal/queue"
)

// NewRouter assembles the HTTP API.
func NewRouter(db *gorm.DB, q *queue.Queue, proc *processor.Processor) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/health", gin.WrapF(health.Handler))

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/sites/:siteID/plans", CreatePlanHandler(db))
		apiGroup.GET("/plans/:id", GetPlanHandler(db))
		apiGroup.POST("/sites/:siteID/queue/tick", TickHandler(proc))
		apiGroup.GET("/sites/:siteID/queue", ListQueueHandler(q))
		apiGroup.POST("/queue/items/:id/requeue", RequeueHandler(q))
	}

	return router
}
