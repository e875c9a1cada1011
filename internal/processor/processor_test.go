package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/contentfabriek/contentpipe/internal/bolcom"
	"github.com/contentfabriek/contentpipe/internal/models"
	"github.com/contentfabriek/contentpipe/internal/planner"
	"github.com/contentfabriek/contentpipe/internal/publisher"
	"github.com/contentfabriek/contentpipe/internal/queue"
)

type fakeGenerator struct {
	calls     int
	failOn    string // fail any call whose prompt contains this substring
	bodyCalls int
	metaCalls int
}

func (f *fakeGenerator) Complete(_ context.Context, prompt string, _ int, _ float64) (string, error) {
	f.calls++
	if f.failOn != "" && strings.Contains(prompt, f.failOn) {
		return "", errors.New("upstream generation error")
	}
	if strings.Contains(prompt, "meta description") {
		f.metaCalls++
		return "Korte, pakkende beschrijving van het artikel.", nil
	}
	f.bodyCalls++
	return "## Intro\n\nDit is het gegenereerde artikel met voldoende inhoud.\n\n## Meer\n\nTweede alinea.", nil
}

type fakeSearcher struct {
	products []bolcom.Product
	err      error
	queries  []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) ([]bolcom.Product, error) {
	f.queries = append(f.queries, query)
	return f.products, f.err
}

type fakeChecker struct {
	err error
}

func (f *fakeChecker) Check(context.Context, uint, int) error {
	return f.err
}

type fakePublisher struct {
	err   error
	posts []publisher.Post
}

func (f *fakePublisher) CreatePost(_ context.Context, post publisher.Post) (publisher.PostRef, error) {
	if f.err != nil {
		return publisher.PostRef{}, f.err
	}
	f.posts = append(f.posts, post)
	return publisher.PostRef{ID: int64(len(f.posts)), URL: "https://example.nl/" + fmt.Sprint(len(f.posts))}, nil
}

type rearmRecorder struct {
	calls []int // chain values
}

func (r *rearmRecorder) rearm(_ context.Context, _ uint, _ int, chain int) error {
	r.calls = append(r.calls, chain)
	return nil
}

type fixture struct {
	db        *gorm.DB
	queue     *queue.Queue
	gen       *fakeGenerator
	searcher  *fakeSearcher
	checker   *fakeChecker
	publisher *fakePublisher
	rearms    *rearmRecorder
	processor *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.QueueItem{},
		&models.SavedContent{},
		&models.SiteCMSConfig{},
		&models.CreditBalance{},
	))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		db:        db,
		queue:     queue.New(db, log),
		gen:       &fakeGenerator{},
		searcher:  &fakeSearcher{},
		checker:   &fakeChecker{},
		publisher: &fakePublisher{},
		rearms:    &rearmRecorder{},
	}
	f.processor = New(Deps{
		DB:        db,
		Queue:     f.queue,
		Generator: f.gen,
		Products:  f.searcher,
		Credits:   f.checker,
		NewPublisher: func(publisher.Credentials) publisher.PostPublisher {
			return f.publisher
		},
		Rearm:  f.rearms.rearm,
		Logger: log,
	})
	return f
}

func (f *fixture) enqueue(t *testing.T, opts queue.Options, titles ...string) {
	t.Helper()
	items := make([]planner.ContentPlanItem, 0, len(titles))
	for _, title := range titles {
		items = append(items, planner.ContentPlanItem{
			Title:              title,
			Type:               models.ContentTypeBlog,
			Keywords:           []string{"kw"},
			SearchIntent:       models.IntentInformational,
			Priority:           models.PriorityMedium,
			EstimatedWordCount: 1200,
		})
	}
	require.NoError(t, f.queue.Enqueue(context.Background(), 1, nil, items, opts))
}

func (f *fixture) itemByTitle(t *testing.T, title string) models.QueueItem {
	t.Helper()
	var item models.QueueItem
	require.NoError(t, f.db.Where("title = ?", title).First(&item).Error)
	return item
}

func TestRunEmptyQueue(t *testing.T) {
	f := newFixture(t)

	report, err := f.processor.Run(context.Background(), 1, 3, 0)
	require.NoError(t, err)

	assert.Zero(t, report.Processed)
	assert.Zero(t, report.Remaining)
	assert.False(t, report.Rearmed)
	assert.Empty(t, f.rearms.calls)
}

func TestRunPartialFailureIsolation(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, queue.Options{}, "eerste artikel", "tweede artikel", "derde artikel")
	f.gen.failOn = "tweede artikel"

	report, err := f.processor.Run(context.Background(), 1, 3, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "tweede artikel", report.Errors[0].Title)
	assert.Contains(t, report.Errors[0].Message, "generation failed")

	assert.Equal(t, models.QueueStatusCompleted, f.itemByTitle(t, "eerste artikel").Status)
	failed := f.itemByTitle(t, "tweede artikel")
	assert.Equal(t, models.QueueStatusFailed, failed.Status)
	assert.NotEmpty(t, failed.ErrorMessage)
	assert.Equal(t, models.QueueStatusCompleted, f.itemByTitle(t, "derde artikel").Status)

	var contents int64
	require.NoError(t, f.db.Model(&models.SavedContent{}).Count(&contents).Error)
	assert.Equal(t, int64(2), contents)
}

func TestRunRearmsUntilBacklogDrained(t *testing.T) {
	f := newFixture(t)
	titles := make([]string, 8)
	for i := range titles {
		titles[i] = fmt.Sprintf("artikel nummer %d", i)
	}
	f.enqueue(t, queue.Options{}, titles...)

	ctx := context.Background()

	report, err := f.processor.Run(ctx, 1, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, int64(5), report.Remaining)
	assert.True(t, report.Rearmed)
	assert.Equal(t, []int{1}, f.rearms.calls)

	report, err = f.processor.Run(ctx, 1, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Remaining)
	assert.True(t, report.Rearmed)

	report, err = f.processor.Run(ctx, 1, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Remaining)
	assert.False(t, report.Rearmed)

	// Two follow-ups total, carrying incremented chain counters.
	assert.Equal(t, []int{1, 2}, f.rearms.calls)
}

func TestRunChainGuardStopsRearming(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, queue.Options{}, "a", "b")

	report, err := f.processor.Run(context.Background(), 1, 1, maxChainLength)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Remaining)
	assert.False(t, report.Rearmed)
	assert.Empty(t, f.rearms.calls)
}

func TestRunAdmissionControlFailsItemBeforeGeneration(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, queue.Options{}, "te duur artikel")
	f.checker.err = errors.New("insufficient credits")

	report, err := f.processor.Run(context.Background(), 1, 3, 0)
	require.NoError(t, err)

	assert.Zero(t, report.Processed)
	assert.Equal(t, 1, report.Failed)
	item := f.itemByTitle(t, "te duur artikel")
	assert.Equal(t, models.QueueStatusFailed, item.Status)
	assert.Contains(t, item.ErrorMessage, "insufficient credits")
	assert.Zero(t, f.gen.calls, "generation must not run when admission fails")
}

func TestRunPublishFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&models.SiteCMSConfig{
		SiteID: 1, BaseURL: "https://site.example", Username: "bot", AppPassword: "pw", Enabled: true,
	}).Error)
	f.enqueue(t, queue.Options{AutoPublish: true}, "publiceer mij")
	f.publisher.err = errors.New("cms unreachable")

	report, err := f.processor.Run(context.Background(), 1, 3, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Processed)
	assert.Zero(t, report.Failed)

	item := f.itemByTitle(t, "publiceer mij")
	assert.Equal(t, models.QueueStatusCompleted, item.Status)
	require.NotNil(t, item.SavedContentID)

	var content models.SavedContent
	require.NoError(t, f.db.First(&content, *item.SavedContentID).Error)
	assert.Contains(t, content.PublishError, "cms unreachable")
	assert.Empty(t, content.PublishedURL)
}

func TestRunPublishSuccessRecordsURL(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&models.SiteCMSConfig{
		SiteID: 1, BaseURL: "https://site.example", Username: "bot", AppPassword: "pw", Enabled: true,
	}).Error)
	f.enqueue(t, queue.Options{AutoPublish: true}, "publiceer mij")

	_, err := f.processor.Run(context.Background(), 1, 3, 0)
	require.NoError(t, err)

	item := f.itemByTitle(t, "publiceer mij")
	require.NotNil(t, item.SavedContentID)
	var content models.SavedContent
	require.NoError(t, f.db.First(&content, *item.SavedContentID).Error)

	assert.NotEmpty(t, content.PublishedURL)
	assert.NotNil(t, content.PublishedAt)
	assert.Empty(t, content.PublishError)
	require.Len(t, f.publisher.posts, 1)
	assert.Equal(t, "publish", f.publisher.posts[0].Status)
}

func TestRunPublishSkippedWithoutCMSConfig(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, queue.Options{AutoPublish: true}, "zonder cms")

	report, err := f.processor.Run(context.Background(), 1, 3, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Processed)
	assert.Empty(t, f.publisher.posts)
	assert.Equal(t, models.QueueStatusCompleted, f.itemByTitle(t, "zonder cms").Status)
}

func TestRunEnrichmentFailureDegradesGracefully(t *testing.T) {
	f := newFixture(t)
	f.searcher.err = errors.New("bolcom down")
	require.NoError(t, f.queue.Enqueue(context.Background(), 1, nil, []planner.ContentPlanItem{{
		Title:              "beste espressomachines",
		Type:               models.ContentTypeListicle,
		Priority:           models.PriorityHigh,
		SearchIntent:       models.IntentCommercial,
		EstimatedWordCount: 1500,
		ProductKeyword:     "espressomachine",
	}}, queue.Options{BolcomEnabled: true}))

	report, err := f.processor.Run(context.Background(), 1, 3, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Processed)
	assert.Zero(t, report.Failed)
	assert.Equal(t, []string{"espressomachine"}, f.searcher.queries)
	assert.Equal(t, models.QueueStatusCompleted, f.itemByTitle(t, "beste espressomachines").Status)
}

func TestBuildContentPromptIncludesEnrichmentAndLinks(t *testing.T) {
	item := &models.QueueItem{
		Title:              "Beste espressomachines van 2025",
		ContentType:        models.ContentTypeListicle,
		SearchIntent:       models.IntentCommercial,
		EstimatedWordCount: 1500,
	}
	products := []bolcom.Product{{Title: "Barista Pro", Price: 499.99, Rating: 4.5, URL: "https://bol.com/p/1"}}
	links := []internalLink{{Title: "Koffiebonen gids", Slug: "koffiebonen-gids"}}

	prompt := buildContentPrompt(item, products, links)

	assert.Contains(t, prompt, "about 1500 words")
	assert.Contains(t, prompt, "Barista Pro")
	assert.Contains(t, prompt, "[Koffiebonen gids](/koffiebonen-gids)")
	assert.Contains(t, prompt, "numbered list")
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "beste-laptops-2024", slugify("Beste Laptops: 2024!"))
	assert.Equal(t, "artikel", slugify("?!"))
}

func TestExcerptClipsFirstParagraph(t *testing.T) {
	body := "## Kop\n\nEerste alinea met de kern.\n\nTweede alinea."
	got := excerpt(body)
	assert.Equal(t, "Eerste alinea met de kern.", got)

	long := strings.Repeat("woord ", 100)
	clipped := excerpt(long)
	assert.LessOrEqual(t, len(clipped), excerptMaxLen+len("…"))
	assert.True(t, strings.HasSuffix(clipped, "…"))
}
