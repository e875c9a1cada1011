package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Queue item status constants
const (
	QueueStatusQueued     = "queued"
	QueueStatusScheduled  = "scheduled"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

// Content type constants
const (
	ContentTypePillar     = "pillar"
	ContentTypeCluster    = "cluster"
	ContentTypeBlog       = "blog"
	ContentTypeListicle   = "listicle"
	ContentTypeReview     = "review"
	ContentTypeComparison = "comparison"
	ContentTypeHowTo      = "how-to"
	ContentTypeGuide      = "guide"
)

// Search intent constants
const (
	IntentInformational = "informational"
	IntentCommercial    = "commercial"
	IntentTransactional = "transactional"
	IntentNavigational  = "navigational"
)

// Priority levels. Stored numerically so the claim query can order by
// priority descending.
const (
	PriorityLow    = 1
	PriorityMedium = 2
	PriorityHigh   = 3
)

// PriorityForType derives an item's priority from its content type and
// plan tier. Product-oriented types and pillars rank highest, other
// cluster content is medium, supporting long-tail content is low.
func PriorityForType(contentType string, supporting bool) int {
	if supporting {
		return PriorityLow
	}
	switch contentType {
	case ContentTypePillar, ContentTypeReview, ContentTypeListicle, ContentTypeComparison:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// ProductType reports whether a content type warrants affiliate product
// enrichment.
func ProductType(contentType string) bool {
	switch contentType {
	case ContentTypeReview, ContentTypeListicle, ContentTypeComparison:
		return true
	}
	return false
}

// QueueItem is the durable unit of generation work. All status transitions
// go through the queue package; handlers never mutate Status directly.
type QueueItem struct {
	gorm.Model
	SiteID             uint           `gorm:"not null;index:idx_queue_items_site_status;uniqueIndex:uix_queue_items_site_position"`
	PlanRunID          *uint          `gorm:"index"`
	Title              string         `gorm:"not null"`
	ContentType        string         `gorm:"column:content_type;not null"`
	Category           string         `gorm:"not null;default:''"`
	Keywords           datatypes.JSON `gorm:"type:jsonb"`
	SearchIntent       string         `gorm:"not null;default:'informational'"`
	EstimatedWordCount int            `gorm:"not null;default:1200"`
	ProductKeyword     string         `gorm:"not null;default:''"`
	Priority           int            `gorm:"not null;default:1"`
	Position           int64          `gorm:"not null;uniqueIndex:uix_queue_items_site_position"`
	Status             string         `gorm:"not null;default:'queued';index:idx_queue_items_site_status"`
	ScheduledFor       time.Time      `gorm:"not null"`
	AutoPublish        bool           `gorm:"not null;default:false"`
	BolcomEnabled      bool           `gorm:"not null;default:false"`
	CompletedAt        *time.Time
	SavedContentID     *uint
	ErrorMessage       string `gorm:"type:text;not null;default:''"`
}

// Terminal reports whether the item has reached a final status.
func (q *QueueItem) Terminal() bool {
	return q.Status == QueueStatusCompleted || q.Status == QueueStatusFailed
}
