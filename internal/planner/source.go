package planner

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/contentfabriek/contentpipe/internal/models"
	"github.com/contentfabriek/contentpipe/internal/topics"
)

// LoadSiteIndex builds the exclusion index for one planning run: every
// content-library record (title and slug) plus the titles of queue items
// that are not failed. Rebuilt fresh per run, never maintained
// incrementally.
func LoadSiteIndex(ctx context.Context, db *gorm.DB, siteID uint) (*topics.Index, error) {
	var existing []topics.ExistingContent

	var library []models.SavedContent
	err := db.WithContext(ctx).
		Select("title", "slug").
		Where("site_id = ?", siteID).
		Find(&library).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load content library: %w", err)
	}
	for _, content := range library {
		existing = append(existing, topics.ExistingContent{Title: content.Title, Slug: content.Slug})
	}

	var queued []models.QueueItem
	err = db.WithContext(ctx).
		Select("title").
		Where("site_id = ? AND status <> ?", siteID, models.QueueStatusFailed).
		Find(&queued).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load queued topics: %w", err)
	}
	for _, item := range queued {
		existing = append(existing, topics.ExistingContent{Title: item.Title})
	}

	return topics.NewIndex(existing), nil
}
