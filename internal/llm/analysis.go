package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/adalign/backend/internal/storage/models"
)

// ErrInvalidResponse marks model output that could not be used. Calls that
// fail with it are not retried.
var ErrInvalidResponse = errors.New("invalid model response")

// Analyzer compares an ad image with an optional landing-page image.
type Analyzer interface {
	Analyze(ctx context.Context, prompt, adImageURL, pageImageURL string) (*Analysis, error)
}

type Analysis struct {
	Scores             models.ComponentScores     `json:"scores"`
	Suggestions        models.Suggestions         `json:"suggestions"`
	ElementComparisons []models.ElementComparison `json:"elementComparisons"`
	OverallScore       int                        `json:"-"`
	Model              string                     `json:"-"`
}

const analysisSchema = `{
  "type": "object",
  "required": ["scores", "suggestions"],
  "properties": {
    "scores": {
      "type": "object",
      "properties": {
        "visualMatch": {"type": "number"},
        "contextualMatch": {"type": "number"},
        "toneAlignment": {"type": "number"}
      }
    },
    "suggestions": {
      "type": "object",
      "properties": {
        "visual": {"type": ["array", "null"], "items": {"type": "string"}},
        "contextual": {"type": ["array", "null"], "items": {"type": "string"}},
        "tone": {"type": ["array", "null"], "items": {"type": "string"}}
      }
    },
    "elementComparisons": {
      "type": ["array", "null"],
      "items": {"type": "object"}
    }
  }
}`

var schema = mustSchema(analysisSchema)

func mustSchema(s string) *gojsonschema.Schema {
	sch, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("llm: bad analysis schema: %v", err))
	}
	return sch
}

// ParseAnalysis decodes and validates the model's JSON answer.
func ParseAnalysis(content string) (*Analysis, error) {
	raw := []byte(stripFences(content))
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: not JSON", ErrInvalidResponse)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, strings.Join(msgs, "; "))
	}

	var a Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	a.Scores.VisualMatch = clamp(a.Scores.VisualMatch)
	a.Scores.ContextualMatch = clamp(a.Scores.ContextualMatch)
	a.Scores.ToneAlignment = clamp(a.Scores.ToneAlignment)
	if a.ElementComparisons == nil {
		a.ElementComparisons = []models.ElementComparison{}
	}
	a.Suggestions = normalizeSuggestions(a.Suggestions)
	a.OverallScore = OverallScore(a.Scores.VisualMatch, a.Scores.ContextualMatch, a.Scores.ToneAlignment)
	return &a, nil
}

// OverallScore is the mean of the three component scores rounded to the
// nearest integer, halves away from zero.
func OverallScore(visual, contextual, tone float64) int {
	return int(math.Round((visual + contextual + tone) / 3))
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 10:
		return 10
	}
	return v
}

func normalizeSuggestions(s models.Suggestions) models.Suggestions {
	if s.Visual == nil {
		s.Visual = []string{}
	}
	if s.Contextual == nil {
		s.Contextual = []string{}
	}
	if s.Tone == nil {
		s.Tone = []string{}
	}
	return s
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
