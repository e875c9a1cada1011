// Package planner builds large deduplicated topical maps: one structured
// generation call, strict parsing, then a duplicate filter against the
// site's full existing-content index.
package planner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/contentfabriek/contentpipe/internal/llm"
	"github.com/contentfabriek/contentpipe/internal/models"
	"github.com/contentfabriek/contentpipe/internal/topics"
)

const (
	// exclusionSampleSize bounds the exclusion list embedded in the
	// prompt. The duplicate filter below always checks the full index.
	exclusionSampleSize = 100

	planMaxTokens   = 8000
	planTemperature = 0.7
)

// Request describes one planning run.
type Request struct {
	SiteID      uint
	Niche       string
	Description string
	Language    string // e.g. "Dutch"; empty falls back to Dutch
	TargetCount int
	TypeMix     map[string]float64
}

// ContentPlanItem is a proposed piece of content, not yet a job. Created
// here and never mutated; acceptance turns it into a QueueItem.
type ContentPlanItem struct {
	Title              string
	Type               string
	Category           string
	Keywords           []string
	SearchIntent       string
	Priority           int
	EstimatedWordCount int
	ProductKeyword     string
}

// Plan is the accepted, deduplicated output of one run.
type Plan struct {
	Items             []ContentPlanItem
	Counts            map[string]int
	DuplicatesRemoved int
}

// Planner asks the text-generation collaborator for a topical map and
// filters it.
type Planner struct {
	gen    llm.TextGenerator
	logger *slog.Logger
}

// New creates a Planner.
func New(gen llm.TextGenerator, logger *slog.Logger) *Planner {
	return &Planner{gen: gen, logger: logger}
}

// Generate produces a deduplicated plan. Collaborator failure or an
// unparsable response fails the whole run; low yield does not.
func (p *Planner) Generate(ctx context.Context, req Request, idx *topics.Index) (*Plan, error) {
	if req.TargetCount < 1 {
		return nil, fmt.Errorf("target count must be at least 1, got %d", req.TargetCount)
	}

	mix := normalizeTypeMix(req.TypeMix)
	prompt := buildPlanPrompt(req, mix, idx.Sample(exclusionSampleSize))

	raw, err := p.gen.Complete(ctx, prompt, planMaxTokens, planTemperature)
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	doc, err := parsePlan(raw)
	if err != nil {
		return nil, fmt.Errorf("plan response unparsable: %w", err)
	}

	plan := &Plan{Counts: make(map[string]int)}
	for _, category := range doc.Categories {
		if category.Pillar != nil {
			p.accept(plan, idx, planItem(*category.Pillar, category.Name, models.ContentTypePillar, false))
		}
		for _, item := range category.ClusterItems {
			contentType := item.Type
			if contentType == "" {
				contentType = models.ContentTypeCluster
			}
			p.accept(plan, idx, planItem(item, category.Name, contentType, false))
		}
		for _, item := range category.SupportingItems {
			contentType := item.Type
			if contentType == "" {
				contentType = models.ContentTypeBlog
			}
			p.accept(plan, idx, planItem(item, category.Name, contentType, true))
		}
	}

	p.logger.Info("Topical plan generated",
		"site_id", req.SiteID,
		"accepted", len(plan.Items),
		"duplicates_removed", plan.DuplicatesRemoved,
		"target", req.TargetCount,
	)
	return plan, nil
}

// accept runs the duplicate filter against the full index and appends the
// item if it survives. Items whose titles normalize to nothing are
// dropped silently; they can never be excluded downstream.
func (p *Planner) accept(plan *Plan, idx *topics.Index, item ContentPlanItem) {
	if topics.Normalize(item.Title) == "" {
		return
	}
	if topics.IsDuplicate(item.Title, idx) {
		plan.DuplicatesRemoved++
		return
	}
	plan.Items = append(plan.Items, item)
	plan.Counts[item.Type]++
}

// planItem converts a decoded item into a ContentPlanItem with derived
// priority and per-type defaults filled in.
func planItem(raw rawPlanItem, category, contentType string, supporting bool) ContentPlanItem {
	item := ContentPlanItem{
		Title:              raw.Title,
		Type:               contentType,
		Category:           category,
		Keywords:           raw.Keywords,
		SearchIntent:       raw.SearchIntent,
		Priority:           models.PriorityForType(contentType, supporting),
		EstimatedWordCount: defaultWordCount(contentType),
	}
	if item.SearchIntent == "" {
		item.SearchIntent = defaultSearchIntent(contentType)
	}
	if models.ProductType(contentType) {
		item.ProductKeyword = raw.ProductKeyword
		if item.ProductKeyword == "" && len(raw.Keywords) > 0 {
			item.ProductKeyword = raw.Keywords[0]
		}
	}
	return item
}

func defaultWordCount(contentType string) int {
	switch contentType {
	case models.ContentTypePillar:
		return 3000
	case models.ContentTypeGuide:
		return 2500
	case models.ContentTypeComparison:
		return 2000
	case models.ContentTypeReview:
		return 1800
	case models.ContentTypeHowTo, models.ContentTypeListicle:
		return 1500
	default:
		return 1200
	}
}

func defaultSearchIntent(contentType string) string {
	switch contentType {
	case models.ContentTypeReview, models.ContentTypeListicle, models.ContentTypeComparison:
		return models.IntentCommercial
	default:
		return models.IntentInformational
	}
}

// normalizeTypeMix scales weights so they sum to 1. A nil or zero mix
// falls back to an even informational/commercial split.
func normalizeTypeMix(mix map[string]float64) map[string]float64 {
	var total float64
	for _, w := range mix {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return map[string]float64{
			models.ContentTypeBlog:     0.4,
			models.ContentTypeHowTo:    0.3,
			models.ContentTypeListicle: 0.2,
			models.ContentTypeReview:   0.1,
		}
	}

	out := make(map[string]float64, len(mix))
	for t, w := range mix {
		if w > 0 {
			out[t] = w / total
		}
	}
	return out
}
