// Package scoring produces the micro-factor breakdown shown next to an
// evaluation. Factor scores are placeholders drawn from a seeded source, not
// measurements; the aggregation rules on top of them are exact.
package scoring

import (
	"math"
	"math/rand"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/adalign/backend/internal/metrics"
	"github.com/adalign/backend/internal/platform"
	"github.com/adalign/backend/pkg/logger"
	"github.com/adalign/backend/pkg/utils"
)

const (
	neutralScore  = 5.0
	maxTopIssues  = 5
	maxQuickWins  = 3
	predictionRef = 6.5
)

type Input struct {
	AdRef        string            `json:"adRef"`
	PageURL      string            `json:"pageUrl"`
	Platform     platform.Platform `json:"platform"`
	Industry     string            `json:"industry"`
	AudienceType string            `json:"audienceType"`

	// Page holds what an inspection of PageURL found, if one ran.
	Page *PageSignals `json:"-"`
}

type PageSignals struct {
	HasHeadline bool
	HasCTA      bool
}

type MicroScore struct {
	Name           string   `json:"name"`
	Score          float64  `json:"score"`
	Weight         float64  `json:"weight"`
	Category       Category `json:"category"`
	Impact         Impact   `json:"impact"`
	Recommendation string   `json:"recommendation,omitempty"`
}

type Prediction struct {
	// CTR and CVR are percentages.
	CTR        float64 `json:"ctr"`
	CVR        float64 `json:"cvr"`
	Confidence float64 `json:"confidence"`
}

type Result struct {
	Platform       platform.Platform    `json:"platform"`
	OverallScore   float64              `json:"overallScore"`
	CategoryScores map[Category]float64 `json:"categoryScores"`
	Weights        map[Category]float64 `json:"weights"`
	Scores         []MicroScore         `json:"scores"`
	TopIssues      []MicroScore         `json:"topIssues"`
	QuickWins      []MicroScore         `json:"quickWins"`
	Prediction     Prediction           `json:"performancePrediction"`
}

type Option func(*Engine)

// WithSeed mixes salt into every per-input seed. Engines with different
// salts score the same input differently.
func WithSeed(salt int64) Option {
	return func(e *Engine) { e.salt = salt }
}

// WithRandSource replaces the source constructor, e.g. with a fixed source
// in tests.
func WithRandSource(fn func(seed int64) rand.Source) Option {
	return func(e *Engine) { e.newSource = fn }
}

type Engine struct {
	salt      int64
	newSource func(seed int64) rand.Source
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{newSource: rand.NewSource}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze scores one ad/page pair. Identical inputs on the same engine give
// identical results.
func (e *Engine) Analyze(in Input) *Result {
	p := in.Platform
	if !p.Valid() {
		p = platform.Meta
	}

	seed := utils.Seed(in.AdRef, in.PageURL, string(p), strings.ToLower(in.Industry), strings.ToLower(in.AudienceType)) ^ e.salt
	rng := rand.New(e.newSource(seed))

	sig := signalsOf(in)
	tables := factorsFor(p)

	var scores []MicroScore
	categoryScores := make(map[Category]float64, len(Categories))
	for _, c := range Categories {
		batch := make([]MicroScore, 0, len(tables[c]))
		for _, fac := range tables[c] {
			lo, hi := sig.band(fac)
			batch = append(batch, MicroScore{
				Name:           fac.name,
				Score:          round(lo+rng.Float64()*(hi-lo), 1),
				Weight:         fac.weight,
				Category:       c,
				Impact:         fac.impact,
				Recommendation: fac.recommendation,
			})
		}
		categoryScores[c] = CategoryScore(batch)
		scores = append(scores, batch...)
	}

	weights := Weights(p)
	res := &Result{
		Platform:       p,
		OverallScore:   Overall(categoryScores, weights),
		CategoryScores: categoryScores,
		Weights:        weights,
		Scores:         scores,
		TopIssues:      TopIssues(scores),
		QuickWins:      QuickWins(scores),
	}
	res.Prediction = Predict(p, res.OverallScore, categoryScores)

	metrics.ScoringRuns.WithLabelValues(string(p)).Inc()
	metrics.ScoringOverall.Observe(res.OverallScore)
	logger.Debug("Scoring completed",
		zap.String("platform", string(p)),
		zap.Float64("overall", res.OverallScore),
		zap.Int("top_issues", len(res.TopIssues)),
	)

	return res
}

// CategoryScore is the weighted mean of a category's factors, or the neutral
// midpoint when there are none.
func CategoryScore(batch []MicroScore) float64 {
	var sum, weights float64
	for _, s := range batch {
		sum += s.Score * s.Weight
		weights += s.Weight
	}
	if weights == 0 {
		return neutralScore
	}
	return sum / weights
}

// Overall combines category scores with the platform weights, rounded to one
// decimal.
func Overall(categoryScores, weights map[Category]float64) float64 {
	var total float64
	for _, c := range Categories {
		total += categoryScores[c] * weights[c]
	}
	return round(clampScore(total), 1)
}

// TopIssues returns HIGH impact factors scoring below 6, worst first.
func TopIssues(scores []MicroScore) []MicroScore {
	out := []MicroScore{}
	for _, s := range scores {
		if s.Impact == High && s.Score < 6 {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	if len(out) > maxTopIssues {
		out = out[:maxTopIssues]
	}
	return out
}

// QuickWins returns fixable HIGH impact factors in the 5-7 band with the most
// weighted headroom first.
func QuickWins(scores []MicroScore) []MicroScore {
	out := []MicroScore{}
	for _, s := range scores {
		if s.Impact == High && s.Score >= 5 && s.Score <= 7 && s.Recommendation != "" {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Weight*(10-out[i].Score) > out[j].Weight*(10-out[j].Score)
	})
	if len(out) > maxQuickWins {
		out = out[:maxQuickWins]
	}
	return out
}

// Predict scales the platform's base CTR and CVR by the overall score and
// the relevant category blends.
func Predict(p platform.Platform, overall float64, cs map[Category]float64) Prediction {
	base, ok := baseRates[p]
	if !ok {
		base = baseRates[platform.Meta]
	}

	multiplier := math.Pow(overall/predictionRef, 1.5)
	ctrBlend := (0.4*cs[Visual] + 0.35*cs[Content] + 0.25*cs[Platform]) / predictionRef
	cvrBlend := (0.45*cs[Conversion] + 0.35*cs[Alignment] + 0.2*cs[Technical]) / predictionRef

	values := make([]float64, 0, len(Categories))
	for _, c := range Categories {
		values = append(values, cs[c])
	}
	confidence := math.Max(0.6, math.Min(0.95, 1/(1+variance(values))))

	return Prediction{
		CTR:        round(base.ctr*multiplier*ctrBlend, 2),
		CVR:        round(base.cvr*multiplier*cvrBlend, 2),
		Confidence: round(confidence, 2),
	}
}

type signals struct {
	https       bool
	hasPage     bool
	hasIndustry bool
	page        *PageSignals
}

func signalsOf(in Input) signals {
	s := signals{hasIndustry: strings.TrimSpace(in.Industry) != "", page: in.Page}
	if u, err := url.Parse(in.PageURL); err == nil && u.Host != "" {
		s.hasPage = true
		s.https = u.Scheme == "https"
	}
	return s
}

// band narrows a factor's score range where the input tells us something.
func (s signals) band(fac factor) (float64, float64) {
	switch fac.name {
	case "HTTPS":
		if !s.hasPage {
			return fac.lo, fac.hi
		}
		if s.https {
			return 8, 10
		}
		return 0, 3
	case "Industry relevance":
		if s.hasIndustry {
			return 5, 9
		}
		return 3, 6
	case "CTA visibility":
		if s.page == nil {
			return fac.lo, fac.hi
		}
		if s.page.HasCTA {
			return 6, 10
		}
		return 1, 4
	case "Headline match":
		if s.page != nil && !s.page.HasHeadline {
			return 1, 4
		}
	}
	return fac.lo, fac.hi
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sum float64
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return sum / float64(len(values))
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(10, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
