package processor

import (
	"fmt"
	"strings"

	"github.com/contentfabriek/contentpipe/internal/bolcom"
	"github.com/contentfabriek/contentpipe/internal/models"
)

// buildContentPrompt assembles the generation request for one item: word
// target, structural instructions for the content type, enrichment data
// and internal link candidates.
func buildContentPrompt(item *models.QueueItem, products []bolcom.Product, links []internalLink) string {
	var b strings.Builder

	b.WriteString("You are an experienced content writer. Write a complete, publish-ready article in Markdown, in the same language as the title.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", item.Title)
	if item.Category != "" {
		fmt.Fprintf(&b, "Topic category: %s\n", item.Category)
	}
	fmt.Fprintf(&b, "Target length: about %d words.\n", item.EstimatedWordCount)
	fmt.Fprintf(&b, "Search intent: %s.\n", item.SearchIntent)
	if keywords := keywordList(item); len(keywords) > 0 {
		fmt.Fprintf(&b, "Work these keywords in naturally: %s.\n", strings.Join(keywords, ", "))
	}

	b.WriteString("\n")
	b.WriteString(structureFor(item.ContentType))

	if len(products) > 0 {
		b.WriteString("\nFeature these products where relevant, with an honest assessment each:\n")
		for _, p := range products {
			fmt.Fprintf(&b, "- %s (price €%.2f, rating %.1f/5): %s\n", p.Title, p.Price, p.Rating, p.URL)
		}
	}

	if len(links) > 0 {
		b.WriteString("\nLink naturally to these existing articles on the site where they fit:\n")
		for _, l := range links {
			fmt.Fprintf(&b, "- [%s](/%s)\n", l.Title, l.Slug)
		}
	}

	b.WriteString("\nRespond with the article body only: no preamble, no title repetition outside the Markdown, no closing remarks.")
	return b.String()
}

// structureFor returns the structural instructions for a content type.
func structureFor(contentType string) string {
	switch contentType {
	case models.ContentTypePillar:
		return "Structure: a comprehensive hub page. Broad introduction, H2 section per subtopic, each ending with a pointer to deeper coverage, closing summary with key takeaways."
	case models.ContentTypeGuide:
		return "Structure: an in-depth guide. Introduction framing the problem, logically ordered H2 chapters from basics to advanced, practical examples throughout, conclusion."
	case models.ContentTypeHowTo:
		return "Structure: a step-by-step tutorial. Short introduction, prerequisites list, numbered steps with an H2 per step, troubleshooting section, conclusion."
	case models.ContentTypeListicle:
		return "Structure: a numbered list article. Brief introduction with selection criteria, one H2 per entry with pros and cons, a comparison verdict at the end."
	case models.ContentTypeReview:
		return "Structure: a hands-on product review. Introduction, specifications overview, experience per aspect under H2 headings, pros and cons lists, final verdict with a rating."
	case models.ContentTypeComparison:
		return "Structure: a head-to-head comparison. Introduction, a comparison table in Markdown, per-criterion H2 sections, which-to-pick-when recommendations, verdict."
	default:
		return "Structure: a focused article. Engaging introduction, 3-6 H2 sections developing the topic, actionable conclusion."
	}
}

// buildMetaPrompt is the second, smaller generation call for the SEO meta
// description.
func buildMetaPrompt(item *models.QueueItem) string {
	return fmt.Sprintf(
		"Write one SEO meta description of at most 155 characters for an article titled %q. "+
			"Search intent: %s. Same language as the title, plain text only, no quotes.",
		item.Title, item.SearchIntent,
	)
}
