package scoring

import "github.com/adalign/backend/internal/platform"

type Category string

const (
	Visual     Category = "visual"
	Content    Category = "content"
	Alignment  Category = "alignment"
	Platform   Category = "platform"
	Conversion Category = "conversion"
	Technical  Category = "technical"
)

// Categories in display order.
var Categories = []Category{Visual, Content, Alignment, Platform, Conversion, Technical}

type Impact string

const (
	High   Impact = "HIGH"
	Medium Impact = "MEDIUM"
	Low    Impact = "LOW"
)

// factor is one row of the static factor table. Scores are drawn from
// [lo, hi].
type factor struct {
	name           string
	weight         float64
	impact         Impact
	recommendation string
	lo, hi         float64
}

func f(name string, weight float64, impact Impact, rec string) factor {
	return factor{name: name, weight: weight, impact: impact, recommendation: rec, lo: 3, hi: 9}
}

var genericFactors = map[Category][]factor{
	Visual: {
		f("Color palette consistency", 0.95, High, "Reuse the ad's dominant colors in the landing page hero and primary buttons."),
		f("Brand logo placement", 0.85, High, "Show the same logo version in the page header that appears in the ad."),
		f("Hero image relevance", 0.9, High, "Lead with the product or scene shown in the ad creative."),
		f("Typography consistency", 0.6, Medium, "Match the ad's headline font weight and style."),
		f("Visual hierarchy", 0.8, High, "Make the offer from the ad the largest element above the fold."),
		f("Image quality", 0.55, Medium, ""),
		f("Whitespace balance", 0.3, Low, ""),
		f("Contrast ratio", 0.5, Medium, "Raise contrast between CTA text and its background."),
		f("Product imagery match", 0.9, High, "Use the exact product variant and angle featured in the ad."),
		f("Layout similarity", 0.6, Medium, ""),
		f("Iconography style", 0.25, Low, ""),
		f("Visual clutter", 0.5, Medium, "Remove secondary banners competing with the ad's message."),
		f("Above-the-fold alignment", 0.85, High, "Keep the ad's key visual visible without scrolling."),
		f("Font size readability", 0.3, Low, ""),
		f("Background treatment", 0.2, Low, ""),
	},
	Content: {
		f("Headline match", 0.95, High, "Repeat the ad headline, or a close paraphrase, as the page H1."),
		f("Offer consistency", 0.95, High, "State the exact discount or offer from the ad above the fold."),
		f("Value proposition clarity", 0.85, High, "Summarize the core benefit in one sentence under the headline."),
		f("Keyword continuity", 0.6, Medium, "Carry the ad's key phrases into subheadings."),
		f("Benefit framing", 0.55, Medium, ""),
		f("Copy length", 0.3, Low, ""),
		f("Pricing transparency", 0.8, High, "Show the price or price range the ad implies."),
		f("Social proof copy", 0.55, Medium, ""),
		f("Industry relevance", 0.5, Medium, ""),
		f("Urgency messaging", 0.3, Low, ""),
		f("Readability level", 0.3, Low, ""),
		f("Feature specificity", 0.5, Medium, ""),
	},
	Alignment: {
		f("Message match", 1.0, High, "Make the first sentence on the page continue the ad's promise."),
		f("Audience fit", 0.85, High, "Use imagery and language aimed at the targeted audience segment."),
		f("Promise fulfilment", 0.9, High, "Deliver the specific item or content the ad promised on the first screen."),
		f("Tone consistency", 0.6, Medium, ""),
		f("Emotional continuity", 0.55, Medium, ""),
		f("Intent alignment", 0.85, High, "Route ad clicks to the page matching the ad's intent, not the homepage."),
		f("Product focus", 0.6, Medium, ""),
		f("Narrative flow", 0.3, Low, ""),
		f("Expectation setting", 0.5, Medium, ""),
		f("Brand voice", 0.35, Low, ""),
	},
	Conversion: {
		f("CTA visibility", 0.95, High, "Place a high-contrast CTA above the fold on mobile."),
		f("CTA copy match", 0.85, High, "Use the same verb on the page CTA as in the ad CTA."),
		f("Form friction", 0.8, High, "Cut the form to the fields needed for the first step."),
		f("Trust badges", 0.6, Medium, "Show payment, security or review badges near the CTA."),
		f("Checkout path length", 0.55, Medium, ""),
		f("Risk reversal", 0.35, Low, ""),
		f("Distraction count", 0.5, Medium, ""),
	},
	Technical: {
		f("Page load speed", 0.95, High, "Compress hero media and defer third-party scripts."),
		f("Mobile responsiveness", 0.9, High, "Fix layout shifts and tap targets on small screens."),
		f("HTTPS", 0.6, Medium, "Serve the landing page over HTTPS."),
		f("Core Web Vitals", 0.6, Medium, ""),
		f("Tracking setup", 0.3, Low, ""),
	},
}

var platformFactors = map[platform.Platform][]factor{
	platform.Meta: {
		f("Feed-to-page visual continuity", 0.95, High, "Open the page with the same image the user saw in feed."),
		f("Thumb-stopping creative carry-over", 0.55, Medium, ""),
		f("Instagram aesthetic fit", 0.5, Medium, ""),
		f("Social proof prominence", 0.8, High, "Surface ratings or customer counts near the headline."),
		f("Mobile-first layout", 0.9, High, "Design the first screen for a 390px wide viewport."),
		f("Story format consistency", 0.3, Low, ""),
		f("Pixel event coverage", 0.3, Low, ""),
		f("Comment-driven objections addressed", 0.5, Medium, ""),
	},
	platform.TikTok: {
		f("Native creator feel", 0.95, High, "Use creator-style imagery instead of polished studio shots."),
		f("Trend continuity", 0.55, Medium, ""),
		f("Sound-off comprehension", 0.5, Medium, ""),
		f("Vertical layout match", 0.85, High, "Keep key content inside a vertical, full-height first screen."),
		f("Instant load on mobile", 0.9, High, "Get first paint under one second on 4G."),
		f("Authenticity of testimonials", 0.6, Medium, ""),
		f("Hook-to-headline carry-over", 0.85, High, "Echo the video's opening hook in the page headline."),
		f("Gen Z tone fit", 0.3, Low, ""),
	},
	platform.LinkedIn: {
		f("Professional credibility", 0.95, High, "Add client logos and named testimonials from recognizable companies."),
		f("B2B value clarity", 0.9, High, "State the business outcome in measurable terms."),
		f("Lead form alignment", 0.8, High, "Ask only for the fields the LinkedIn ad promised to need."),
		f("Company authority signals", 0.6, Medium, ""),
		f("Job-title relevance", 0.55, Medium, ""),
		f("Gated asset delivery", 0.5, Medium, ""),
		f("Desktop layout quality", 0.3, Low, ""),
		f("Case study presence", 0.55, Medium, ""),
	},
	platform.Google: {
		f("Query-to-headline match", 1.0, High, "Put the search keyword from the ad in the page H1."),
		f("Ad extension consistency", 0.5, Medium, ""),
		f("Quality Score signals", 0.85, High, "Tighten the page topic around the ad group's keyword theme."),
		f("Keyword density", 0.45, Medium, ""),
		f("Search intent fulfilment", 0.9, High, "Answer the searcher's question in the first screen."),
		f("Sitelink destination relevance", 0.3, Low, ""),
		f("Landing page experience", 0.85, High, "Remove interstitials and make navigation obvious."),
		f("Price and extension accuracy", 0.55, Medium, ""),
	},
	platform.Reddit: {
		f("Community authenticity", 0.95, High, "Write like a member of the community, not a brand."),
		f("Transparency of claims", 0.9, High, "Back each claim with a source, spec or screenshot."),
		f("Subreddit tone fit", 0.6, Medium, ""),
		f("Low-hype copy", 0.55, Medium, ""),
		f("Discussion-friendly content", 0.3, Low, ""),
		f("Detailed product info", 0.8, High, "Add a full spec table and honest limitations."),
		f("User-generated proof", 0.55, Medium, ""),
		f("No dark patterns", 0.85, High, "Drop countdown timers and pre-checked upsells."),
	},
}

// weightTables hold the six category weights per platform; each sums to 1.
var weightTables = map[platform.Platform]map[Category]float64{
	platform.Meta:     {Visual: 0.25, Content: 0.20, Alignment: 0.20, Platform: 0.15, Conversion: 0.12, Technical: 0.08},
	platform.TikTok:   {Visual: 0.30, Content: 0.15, Alignment: 0.15, Platform: 0.25, Conversion: 0.10, Technical: 0.05},
	platform.LinkedIn: {Visual: 0.15, Content: 0.30, Alignment: 0.20, Platform: 0.15, Conversion: 0.12, Technical: 0.08},
	platform.Google:   {Visual: 0.10, Content: 0.25, Alignment: 0.30, Platform: 0.10, Conversion: 0.15, Technical: 0.10},
	platform.Reddit:   {Visual: 0.12, Content: 0.30, Alignment: 0.20, Platform: 0.23, Conversion: 0.10, Technical: 0.05},
}

type baseRate struct {
	ctr, cvr float64
}

// Industry-average click-through and conversion rates in percent.
var baseRates = map[platform.Platform]baseRate{
	platform.Meta:     {ctr: 0.90, cvr: 9.21},
	platform.TikTok:   {ctr: 1.00, cvr: 1.10},
	platform.LinkedIn: {ctr: 0.44, cvr: 6.10},
	platform.Google:   {ctr: 3.17, cvr: 3.75},
	platform.Reddit:   {ctr: 0.35, cvr: 1.50},
}

// Weights returns a copy of the category weight table for p. Unknown
// platforms use the Meta table.
func Weights(p platform.Platform) map[Category]float64 {
	table, ok := weightTables[p]
	if !ok {
		table = weightTables[platform.Meta]
	}
	out := make(map[Category]float64, len(table))
	for k, v := range table {
		out[k] = v
	}
	return out
}

func factorsFor(p platform.Platform) map[Category][]factor {
	pf, ok := platformFactors[p]
	if !ok {
		pf = platformFactors[platform.Meta]
	}
	out := make(map[Category][]factor, len(Categories))
	for c, fs := range genericFactors {
		out[c] = fs
	}
	out[Platform] = pf
	return out
}
