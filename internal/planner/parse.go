package planner

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

// rawPlanDoc mirrors the JSON shape requested by the prompt.
type rawPlanDoc struct {
	Categories []rawPlanCategory `json:"categories"`
}

type rawPlanCategory struct {
	Name            string        `json:"name"`
	Pillar          *rawPlanItem  `json:"pillar"`
	ClusterItems    []rawPlanItem `json:"cluster_items"`
	SupportingItems []rawPlanItem `json:"supporting_items"`
}

type rawPlanItem struct {
	Title          string   `json:"title"`
	Type           string   `json:"type"`
	Keywords       []string `json:"keywords"`
	SearchIntent   string   `json:"search_intent"`
	ProductKeyword string   `json:"product_keyword"`
}

// planSchema guards the decoded plan before it is trusted. Titles are
// required; everything else is advisory and defaulted later.
const planSchema = `{
  "type": "object",
  "required": ["categories"],
  "properties": {
    "categories": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "pillar": {"$ref": "#/$defs/item"},
          "cluster_items": {"type": "array", "items": {"$ref": "#/$defs/item"}},
          "supporting_items": {"type": "array", "items": {"$ref": "#/$defs/item"}}
        }
      }
    }
  },
  "$defs": {
    "item": {
      "type": "object",
      "required": ["title"],
      "properties": {
        "title": {"type": "string", "minLength": 1},
        "type": {"type": "string"},
        "keywords": {"type": "array", "items": {"type": "string"}},
        "search_intent": {"type": "string"},
        "product_keyword": {"type": "string"}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func planJSONSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiledSchema, schemaErr = compiler.Compile([]byte(planSchema))
	})
	return compiledSchema, schemaErr
}

// parsePlan extracts the first top-level JSON object from the model's
// response (which may be wrapped in prose or markdown fences), validates
// it against the plan schema and decodes it strictly. Any failure is a
// hard error for the whole planning run.
func parsePlan(response string) (*rawPlanDoc, error) {
	raw, err := extractJSONObject(response)
	if err != nil {
		return nil, err
	}

	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	schema, err := planJSONSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile plan schema: %w", err)
	}
	result := schema.Validate(generic)
	if !result.IsValid() {
		var errorMessages []string
		for field, evalErr := range result.Errors {
			errorMessages = append(errorMessages, fmt.Sprintf("%s: %s", field, evalErr.Error()))
		}
		return nil, fmt.Errorf("plan validation failed: %s", strings.Join(errorMessages, "; "))
	}

	var doc rawPlanDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	return &doc, nil
}

// extractJSONObject returns the first balanced top-level {...} block,
// ignoring braces inside JSON strings. Markdown code fences around the
// object are tolerated because the scan simply skips them.
func extractJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("unbalanced JSON object in response")
}
