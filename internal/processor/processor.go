// Package processor drains the content queue in bounded cooperative
// ticks: claim a small batch, run each generation job with per-item
// failure isolation, then arm at most one follow-up tick while backlog
// remains.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/contentfabriek/contentpipe/internal/bolcom"
	"github.com/contentfabriek/contentpipe/internal/credits"
	"github.com/contentfabriek/contentpipe/internal/events"
	"github.com/contentfabriek/contentpipe/internal/llm"
	"github.com/contentfabriek/contentpipe/internal/models"
	"github.com/contentfabriek/contentpipe/internal/publisher"
	"github.com/contentfabriek/contentpipe/internal/queue"
)

const (
	// DefaultBatchSize keeps one tick's external-API load modest; the
	// generation collaborator is rate limited.
	DefaultBatchSize = 3

	// RearmCooldown spaces self-chained ticks so a deep backlog drains
	// steadily instead of hammering external services.
	RearmCooldown = 5 * time.Second

	// maxChainLength bounds tick self-chaining. A pathological backlog
	// falls back to the periodic scheduler entry instead of chaining
	// forever.
	maxChainLength = 64

	maxEnrichmentProducts = 5
	maxInternalLinks      = 5
)

// RearmFunc schedules one follow-up tick after the cooldown. chain is the
// incremented chain counter to carry in the follow-up.
type RearmFunc func(ctx context.Context, siteID uint, batchSize, chain int) error

// PublisherFactory builds a CMS client for one site's credentials. A
// factory rather than a shared client because credentials are per site.
type PublisherFactory func(creds publisher.Credentials) publisher.PostPublisher

// ItemError reports one failed item in a tick.
type ItemError struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Report is the only externally observable outcome of a tick.
type Report struct {
	Processed int         `json:"processed"`
	Failed    int         `json:"failed"`
	Remaining int64       `json:"remaining"`
	Errors    []ItemError `json:"errors"`
	Rearmed   bool        `json:"rearmed"`
}

// Processor executes queue ticks.
type Processor struct {
	db           *gorm.DB
	queue        *queue.Queue
	gen          llm.TextGenerator
	products     bolcom.ProductSearcher
	credits      credits.Checker
	events       *events.Publisher
	newPublisher PublisherFactory
	rearm        RearmFunc
	logger       *slog.Logger
}

// Deps wires the processor's collaborators.
type Deps struct {
	DB           *gorm.DB
	Queue        *queue.Queue
	Generator    llm.TextGenerator
	Products     bolcom.ProductSearcher
	Credits      credits.Checker
	Events       *events.Publisher
	NewPublisher PublisherFactory
	Rearm        RearmFunc
	Logger       *slog.Logger
}

// New creates a Processor. Products, Events, NewPublisher and Rearm may
// be nil: enrichment is skipped, events are dropped, publishing is
// skipped and ticks never self-chain, respectively.
func New(deps Deps) *Processor {
	p := &Processor{
		db:           deps.DB,
		queue:        deps.Queue,
		gen:          deps.Generator,
		products:     deps.Products,
		credits:      deps.Credits,
		events:       deps.Events,
		newPublisher: deps.NewPublisher,
		rearm:        deps.Rearm,
		logger:       deps.Logger,
	}
	if p.newPublisher == nil {
		p.newPublisher = func(creds publisher.Credentials) publisher.PostPublisher {
			return publisher.NewWordPressClient(creds)
		}
	}
	return p
}

// Run executes one tick for a site. Per-item failures are absorbed into
// the report; an error return means the tick itself could not run (claim
// or count failure).
func (p *Processor) Run(ctx context.Context, siteID uint, batchSize, chain int) (Report, error) {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	var report Report
	claimed, err := p.queue.ClaimDueBatch(ctx, siteID, batchSize)
	if err != nil {
		return report, fmt.Errorf("failed to claim batch: %w", err)
	}
	if len(claimed) == 0 {
		return report, nil
	}

	p.logger.Info("Processing queue tick",
		"site_id", siteID,
		"claimed", len(claimed),
		"chain", chain,
	)

	for i := range claimed {
		item := &claimed[i]
		if err := p.runItemIsolated(ctx, item); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, ItemError{Title: item.Title, Message: err.Error()})
			continue
		}
		report.Processed++
	}

	remaining, err := p.queue.CountRemainingDue(ctx, siteID)
	if err != nil {
		return report, fmt.Errorf("failed to count remaining items: %w", err)
	}
	report.Remaining = remaining

	if remaining > 0 && chain < maxChainLength && p.rearm != nil {
		if err := p.rearm(ctx, siteID, batchSize, chain+1); err != nil {
			// The backlog stays due; the periodic scheduler will pick it
			// up, so a rearm failure is not a tick failure.
			p.logger.Error("Failed to arm follow-up tick", "site_id", siteID, "error", err.Error())
		} else {
			report.Rearmed = true
		}
	}

	p.logger.Info("Queue tick finished",
		"site_id", siteID,
		"processed", report.Processed,
		"failed", report.Failed,
		"remaining", report.Remaining,
		"rearmed", report.Rearmed,
	)
	return report, nil
}

// runItemIsolated keeps one item's panic or error from aborting its
// siblings in the batch.
func (p *Processor) runItemIsolated(ctx context.Context, item *models.QueueItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation job panicked: %v", r)
			p.failItem(ctx, item, err.Error())
		}
	}()
	return p.runItem(ctx, item)
}
