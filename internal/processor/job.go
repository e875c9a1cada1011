package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/contentfabriek/contentpipe/internal/bolcom"
	"github.com/contentfabriek/contentpipe/internal/events"
	"github.com/contentfabriek/contentpipe/internal/models"
	"github.com/contentfabriek/contentpipe/internal/publisher"
	"github.com/contentfabriek/contentpipe/internal/topics"
)

const (
	bodyTemperature = 0.7
	metaTemperature = 0.4
	metaMaxTokens   = 200
	excerptMaxLen   = 300
)

// internalLink is an already-published piece offered to the generation
// prompt for interlinking.
type internalLink struct {
	Title string
	Slug  string
}

// runItem executes the generation job for one claimed queue entry:
// admission check, optional enrichment, generation, persistence and
// optional publish. On failure it marks the item failed and returns the
// error; on success it marks the item completed.
func (p *Processor) runItem(ctx context.Context, item *models.QueueItem) error {
	if err := p.credits.Check(ctx, item.SiteID, item.EstimatedWordCount); err != nil {
		failure := fmt.Errorf("admission check failed: %w", err)
		p.failItem(ctx, item, failure.Error())
		return failure
	}

	// Enrichment is best effort: any failure degrades to "no products".
	var products []bolcom.Product
	if item.BolcomEnabled && item.ProductKeyword != "" && p.products != nil {
		found, err := p.products.Search(ctx, item.ProductKeyword, maxEnrichmentProducts)
		if err != nil {
			p.logger.Warn("Product enrichment skipped",
				"queue_item_id", item.ID,
				"product_keyword", item.ProductKeyword,
				"error", err.Error(),
			)
		} else {
			products = found
		}
	}

	links := p.recentInternalLinks(ctx, item.SiteID)

	body, err := p.gen.Complete(ctx, buildContentPrompt(item, products, links), bodyMaxTokens(item.EstimatedWordCount), bodyTemperature)
	if err != nil {
		failure := fmt.Errorf("content generation failed: %w", err)
		p.failItem(ctx, item, failure.Error())
		return failure
	}

	meta, err := p.gen.Complete(ctx, buildMetaPrompt(item), metaMaxTokens, metaTemperature)
	if err != nil {
		failure := fmt.Errorf("meta description generation failed: %w", err)
		p.failItem(ctx, item, failure.Error())
		return failure
	}
	meta = strings.TrimSpace(strings.Trim(strings.TrimSpace(meta), `"`))

	content := models.SavedContent{
		SiteID:          item.SiteID,
		QueueItemID:     &item.ID,
		Title:           item.Title,
		Slug:            slugify(item.Title),
		Content:         body,
		Excerpt:         excerpt(body),
		MetaDescription: meta,
		WordCount:       len(strings.Fields(body)),
	}
	if err := p.db.WithContext(ctx).Create(&content).Error; err != nil {
		failure := fmt.Errorf("failed to save content: %w", err)
		p.failItem(ctx, item, failure.Error())
		return failure
	}

	// Publish failure never fails the item; the error is recorded on the
	// content record for visibility.
	if item.AutoPublish {
		p.publishContent(ctx, item, &content)
	}

	if err := p.queue.MarkCompleted(ctx, item.ID, content.ID); err != nil {
		return fmt.Errorf("failed to mark item completed: %w", err)
	}

	p.publishEvent(ctx, events.Event{
		Type:           events.EventItemCompleted,
		SiteID:         item.SiteID,
		QueueItemID:    item.ID,
		Title:          item.Title,
		SavedContentID: content.ID,
	})

	p.logger.Info("Generation job completed",
		"queue_item_id", item.ID,
		"site_id", item.SiteID,
		"word_count", content.WordCount,
		"published", content.PublishedURL != "",
	)
	return nil
}

// publishContent submits the saved content to the site's CMS when one is
// configured. Missing or disabled configuration is a silent skip.
func (p *Processor) publishContent(ctx context.Context, item *models.QueueItem, content *models.SavedContent) {
	var cms models.SiteCMSConfig
	err := p.db.WithContext(ctx).
		Where("site_id = ? AND enabled = ?", item.SiteID, true).
		First(&cms).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			p.logger.Error("Failed to load CMS config", "site_id", item.SiteID, "error", err.Error())
		}
		return
	}

	client := p.newPublisher(publisher.Credentials{
		BaseURL:     cms.BaseURL,
		Username:    cms.Username,
		AppPassword: cms.AppPassword,
	})
	ref, err := client.CreatePost(ctx, publisher.Post{
		Title:   content.Title,
		Content: content.Content,
		Excerpt: content.Excerpt,
		Status:  "publish",
	})
	if err != nil {
		p.logger.Error("Auto-publish failed",
			"queue_item_id", item.ID,
			"site_id", item.SiteID,
			"error", err.Error(),
		)
		content.PublishError = err.Error()
		p.db.WithContext(ctx).Model(content).Update("publish_error", content.PublishError)
		return
	}

	now := time.Now().UTC()
	content.PublishedURL = ref.URL
	content.PublishedAt = &now
	p.db.WithContext(ctx).Model(content).Updates(map[string]interface{}{
		"published_url": ref.URL,
		"published_at":  now,
	})
}

// recentInternalLinks returns up to maxInternalLinks recent library
// entries for the site. Best effort: an error just means no links.
func (p *Processor) recentInternalLinks(ctx context.Context, siteID uint) []internalLink {
	var rows []models.SavedContent
	err := p.db.WithContext(ctx).
		Where("site_id = ?", siteID).
		Order("created_at DESC").
		Limit(maxInternalLinks).
		Find(&rows).Error
	if err != nil {
		p.logger.Warn("Failed to load internal links", "site_id", siteID, "error", err.Error())
		return nil
	}

	links := make([]internalLink, 0, len(rows))
	for _, row := range rows {
		links = append(links, internalLink{Title: row.Title, Slug: row.Slug})
	}
	return links
}

func (p *Processor) failItem(ctx context.Context, item *models.QueueItem, message string) {
	if err := p.queue.MarkFailed(ctx, item.ID, message); err != nil {
		p.logger.Error("Failed to mark item failed",
			"queue_item_id", item.ID,
			"error", err.Error(),
		)
	}
	p.publishEvent(ctx, events.Event{
		Type:         events.EventItemFailed,
		SiteID:       item.SiteID,
		QueueItemID:  item.ID,
		Title:        item.Title,
		ErrorMessage: message,
	})
}

func (p *Processor) publishEvent(ctx context.Context, event events.Event) {
	if err := p.events.Publish(ctx, event); err != nil {
		p.logger.Warn("Failed to publish event", "type", event.Type, "error", err.Error())
	}
}

// keywordList decodes an item's stored keywords, tolerating legacy rows
// with no keyword payload.
func keywordList(item *models.QueueItem) []string {
	if len(item.Keywords) == 0 {
		return nil
	}
	var keywords []string
	if err := json.Unmarshal(item.Keywords, &keywords); err != nil {
		return nil
	}
	return keywords
}

// slugify turns a title into a URL slug via the same normalization used
// for duplicate detection.
func slugify(title string) string {
	normalized := topics.Normalize(title)
	if normalized == "" {
		return "artikel"
	}
	return strings.ReplaceAll(normalized, " ", "-")
}

// excerpt takes the first non-heading paragraph, clipped to a reasonable
// teaser length on a word boundary.
func excerpt(body string) string {
	paragraph := ""
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" || strings.HasPrefix(block, "#") {
			continue
		}
		paragraph = block
		break
	}
	if len(paragraph) <= excerptMaxLen {
		return paragraph
	}
	clipped := paragraph[:excerptMaxLen]
	if idx := strings.LastIndexByte(clipped, ' '); idx > 0 {
		clipped = clipped[:idx]
	}
	return clipped + "…"
}

// bodyMaxTokens sizes the completion budget to the word target. Roughly
// 1.5 tokens per word plus markup headroom, clamped to sane bounds.
func bodyMaxTokens(wordCount int) int {
	tokens := wordCount * 2
	if tokens < 1500 {
		return 1500
	}
	if tokens > 8000 {
		return 8000
	}
	return tokens
}
