package planner

import (
	"fmt"
	"sort"
	"strings"
)

// buildPlanPrompt assembles the single planning request: niche context,
// type-mix weights, a bounded exclusion sample and strict structural JSON
// instructions grouped into categories with pillar, cluster and
// supporting buckets.
func buildPlanPrompt(req Request, mix map[string]float64, exclusions []string) string {
	var b strings.Builder

	b.WriteString("You are an expert SEO content strategist. Create a topical map for the following website.\n\n")
	fmt.Fprintf(&b, "Niche: %s\n", req.Niche)
	if req.Description != "" {
		fmt.Fprintf(&b, "Site description: %s\n", req.Description)
	}
	language := req.Language
	if language == "" {
		language = "Dutch"
	}
	fmt.Fprintf(&b, "Content language: %s. Every title must be in this language.\n", language)
	fmt.Fprintf(&b, "Target: at least %d content items, grouped into 3-8 topical categories.\n\n", req.TargetCount)

	b.WriteString("Distribute cluster content types approximately by these weights:\n")
	for _, t := range sortedKeys(mix) {
		fmt.Fprintf(&b, "- %s: %.0f%%\n", t, mix[t]*100)
	}

	if len(exclusions) > 0 {
		b.WriteString("\nThe site already covers the topics below. Do NOT propose these or close variants:\n")
		for _, topic := range exclusions {
			fmt.Fprintf(&b, "- %s\n", topic)
		}
	}

	b.WriteString(`
Respond with ONLY a JSON object, no commentary, in exactly this shape:
{
  "categories": [
    {
      "name": "category name",
      "pillar": {
        "title": "comprehensive hub page title",
        "keywords": ["keyword", "..."],
        "search_intent": "informational|commercial|transactional|navigational"
      },
      "cluster_items": [
        {
          "title": "focused article title",
          "type": "cluster|blog|listicle|review|comparison|how-to|guide",
          "keywords": ["keyword", "..."],
          "search_intent": "informational|commercial|transactional|navigational",
          "product_keyword": "only for review/listicle/comparison items"
        }
      ],
      "supporting_items": [
        {
          "title": "long-tail supporting article title",
          "keywords": ["keyword", "..."]
        }
      ]
    }
  ]
}

Every title must be unique, concrete and publishable as-is.`)

	return b.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
