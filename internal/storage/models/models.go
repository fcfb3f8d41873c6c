package models

import "time"

type Audience struct {
	AgeRange  string   `json:"ageRange"`
	Gender    string   `json:"gender"`
	Location  string   `json:"location,omitempty"`
	Interests []string `json:"interests"`
}

// ComponentScores are the three 0-10 congruence scores returned by the vision model.
type ComponentScores struct {
	VisualMatch     float64 `json:"visualMatch"`
	ContextualMatch float64 `json:"contextualMatch"`
	ToneAlignment   float64 `json:"toneAlignment"`
}

type Suggestions struct {
	Visual     []string `json:"visual"`
	Contextual []string `json:"contextual"`
	Tone       []string `json:"tone"`
}

type MatchStatus string

const (
	StatusMatch    MatchStatus = "match"
	StatusPartial  MatchStatus = "partial"
	StatusMismatch MatchStatus = "mismatch"
)

type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

type ElementComparison struct {
	Element          string         `json:"element"`
	AdValue          string         `json:"adValue"`
	LandingPageValue string         `json:"landingPageValue"`
	Status           MatchStatus    `json:"status"`
	Severity         Severity       `json:"severity"`
	Recommendation   string         `json:"recommendation"`
	Analysis         map[string]any `json:"analysis,omitempty"`
}

// Evaluation is an insert-only record of a completed, non-fallback analysis.
type Evaluation struct {
	ID                  string
	AccountID           string
	Platform            string
	AdImageURL          string
	AdSourceType        string
	AdExtractionMethod  string
	AdFrameCount        int
	LandingPageURL      string
	LandingPageImageURL string
	Audience            Audience
	Scores              ComponentScores
	OverallScore        int
	Suggestions         Suggestions
	ElementComparisons  []ElementComparison
	CreatedAt           time.Time
}
