package evaluation

import "github.com/adalign/backend/internal/storage/models"

// FallbackResult is returned when the vision model cannot produce a usable
// analysis. It has the same shape as a real result.
func FallbackResult() *Result {
	return &Result{
		OverallScore: 7,
		ComponentScores: models.ComponentScores{
			VisualMatch:     7,
			ContextualMatch: 6.5,
			ToneAlignment:   7.5,
		},
		Suggestions: models.Suggestions{
			Visual: []string{
				"Use the same primary color from the ad in the landing page hero and CTA button.",
				"Feature the product image from the ad above the fold.",
			},
			Contextual: []string{
				"Repeat the ad headline or its core promise as the page headline.",
				"Make the offer mentioned in the ad visible without scrolling.",
			},
			Tone: []string{
				"Keep the voice of the page consistent with the ad copy.",
				"Carry the ad's emotional hook into the first paragraph.",
			},
		},
		ElementComparisons: []models.ElementComparison{
			{
				Element:          "Colors",
				AdValue:          "Bright brand palette",
				LandingPageValue: "Muted neutral palette",
				Status:           models.StatusPartial,
				Severity:         models.SeverityMedium,
				Recommendation:   "Bring the ad's accent color into the page buttons and highlights.",
			},
			{
				Element:          "Headline",
				AdValue:          "Benefit-led short headline",
				LandingPageValue: "Generic brand headline",
				Status:           models.StatusMismatch,
				Severity:         models.SeverityHigh,
				Recommendation:   "Mirror the ad headline on the page, or rewrite the ad to match the page H1.",
			},
			{
				Element:          "Call to Action",
				AdValue:          "Shop Now",
				LandingPageValue: "Learn More",
				Status:           models.StatusMismatch,
				Severity:         models.SeverityHigh,
				Recommendation:   "Use the same CTA verb in the ad and on the primary page button.",
			},
			{
				Element:          "Emotional Tone",
				AdValue:          "Energetic",
				LandingPageValue: "Neutral",
				Status:           models.StatusPartial,
				Severity:         models.SeverityMedium,
				Recommendation:   "Lift the page copy to match the ad's energy.",
			},
			{
				Element:          "Trust Signals",
				AdValue:          "None visible",
				LandingPageValue: "Reviews below the fold",
				Status:           models.StatusPartial,
				Severity:         models.SeverityLow,
				Recommendation:   "Move reviews or guarantees closer to the first CTA.",
			},
			{
				Element:          "Mobile Experience",
				AdValue:          "Vertical, mobile-first",
				LandingPageValue: "Desktop-oriented layout",
				Status:           models.StatusPartial,
				Severity:         models.SeverityMedium,
				Recommendation:   "Make the first mobile screen show the offer and CTA together.",
			},
		},
		fallback: true,
	}
}
