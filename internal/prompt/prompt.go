// Package prompt assembles the instruction text sent to the vision model
// alongside the ad and landing-page images.
package prompt

import (
	"fmt"
	"strings"

	"github.com/adalign/backend/internal/capture"
	"github.com/adalign/backend/internal/platform"
	"github.com/adalign/backend/internal/storage/models"
)

// Elements are compared in this order and every one must appear in the
// model's elementComparisons list.
var Elements = []string{
	"Colors",
	"Headline",
	"Call to Action",
	"Emotional Tone",
	"Trust Signals",
	"Mobile Experience",
}

type Input struct {
	SourceType  capture.SourceType
	Platform    platform.Platform
	Audience    models.Audience
	Headline    string
	Description string
	Industry    string
	// LandingPageText is the inspector summary of the page, if one was fetched.
	LandingPageText string
	// HasLandingPageImage is false when only the ad image is attached.
	HasLandingPageImage bool
}

const scoringRules = `SCORING RULES (strict):
- Score each dimension from 1 to 10. Be critical: most scores should land between 1 and 4.
- 5-6 means noticeably aligned with clear gaps. 7-8 requires near-identical visuals and messaging.
- 9-10 is reserved for pages that look like a direct continuation of the ad. Almost nothing earns it.
- Do not inflate scores to be encouraging. Explain low scores in the suggestions instead.`

const responseSchema = `Respond with a single JSON object and nothing else:
{
  "scores": {
    "visualMatch": <number 1-10>,
    "contextualMatch": <number 1-10>,
    "toneAlignment": <number 1-10>
  },
  "suggestions": {
    "visual": ["<specific change>", "..."],
    "contextual": ["<specific change>", "..."],
    "tone": ["<specific change>", "..."]
  },
  "elementComparisons": [
    {
      "element": "<one of: %s>",
      "adValue": "<what the ad shows>",
      "landingPageValue": "<what the landing page shows>",
      "status": "match" | "partial" | "mismatch",
      "severity": "HIGH" | "MEDIUM" | "LOW",
      "recommendation": "<change the page to match the ad, or the ad to match the page>"
    }
  ]
}`

// Build renders the evaluation prompt. It has no side effects.
func Build(in Input) string {
	cfg := platform.Lookup(in.Platform)
	var b strings.Builder

	fmt.Fprintf(&b, "You are an expert performance marketer auditing message match between a %s ad and its landing page.\n\n",
		cfg.DisplayName)

	b.WriteString("PLATFORM CONTEXT:\n")
	b.WriteString(cfg.PromptContext)
	b.WriteString("\n\n")

	b.WriteString("AD CREATIVE:\n")
	b.WriteString(sourceDescription(in.SourceType))
	b.WriteString("\n")
	if in.Headline != "" {
		fmt.Fprintf(&b, "Headline supplied by the advertiser: %q\n", in.Headline)
	}
	if in.Description != "" {
		fmt.Fprintf(&b, "Description supplied by the advertiser: %q\n", in.Description)
	}
	if in.Industry != "" {
		fmt.Fprintf(&b, "Industry: %s\n", in.Industry)
	}
	b.WriteString("\n")

	b.WriteString("TARGET AUDIENCE:\n")
	b.WriteString(audienceLines(in.Audience))
	b.WriteString("\n")

	b.WriteString("LANDING PAGE:\n")
	if in.HasLandingPageImage {
		b.WriteString("The second image is a screenshot of the landing page above the fold at 1280x800.\n")
	} else {
		b.WriteString("No landing page screenshot is available. Judge the page from the text below and say so where it limits your analysis.\n")
	}
	if in.LandingPageText != "" {
		b.WriteString("Text extracted from the page:\n")
		b.WriteString(in.LandingPageText)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(`ANALYSIS STEPS:
1. Extract the dominant colors (hex codes where possible) of the ad and the landing page.
2. Transcribe every visible text element: headlines, offers, prices, calls to action.
3. Describe the visual style, imagery and layout of each.
4. List trust signals (reviews, logos, guarantees, security badges) and whether the page carries the ad's claims through.
5. Describe mobile cues: thumb-reachable CTA, legible text, load-heavy elements.
6. Describe the emotional tone of each and whether the page sustains the ad's mood for this audience.

`)

	b.WriteString(scoringRules)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "ELEMENT COMPARISONS:\nCompare exactly these elements, in this order: %s.\n", strings.Join(Elements, ", "))
	b.WriteString("Tag each with severity HIGH when the mismatch would make a visitor doubt they are in the right place, ")
	b.WriteString("MEDIUM when it weakens conversion, LOW for polish.\n\n")

	fmt.Fprintf(&b, responseSchema, strings.Join(Elements, ", "))
	return b.String()
}

func sourceDescription(st capture.SourceType) string {
	switch st {
	case capture.SourceVideo:
		return "The first image contains frames extracted from a video ad, in playback order. Treat them as one creative."
	case capture.SourceURL:
		return "The first image is a screenshot of the ad as rendered by the platform."
	default:
		return "The first image is the ad creative uploaded by the advertiser."
	}
}

func audienceLines(a models.Audience) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Age range: %s\n", orUnspecified(a.AgeRange))
	fmt.Fprintf(&b, "- Gender: %s\n", orUnspecified(a.Gender))
	if a.Location != "" {
		fmt.Fprintf(&b, "- Location: %s\n", a.Location)
	}
	if len(a.Interests) > 0 {
		fmt.Fprintf(&b, "- Interests: %s\n", strings.Join(a.Interests, ", "))
	}
	return b.String()
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unspecified"
	}
	return s
}
