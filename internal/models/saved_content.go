package models

import (
	"time"

	"gorm.io/gorm"
)

// SavedContent is a content-library record produced by a generation job.
// PublishError is an annotation only: a failed publish never flips the
// originating queue item out of completed.
type SavedContent struct {
	gorm.Model
	SiteID          uint   `gorm:"not null;index"`
	QueueItemID     *uint  `gorm:"index"`
	Title           string `gorm:"not null"`
	Slug            string `gorm:"not null"`
	Content         string `gorm:"type:text;not null"`
	Excerpt         string `gorm:"type:text;not null;default:''"`
	MetaDescription string `gorm:"not null;default:''"`
	WordCount       int    `gorm:"not null;default:0"`
	PublishedURL    string `gorm:"not null;default:''"`
	PublishedAt     *time.Time
	PublishError    string `gorm:"type:text;not null;default:''"`
}
