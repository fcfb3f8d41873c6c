// Package evaluation runs one ad/landing-page congruence evaluation from
// quota check to persisted result.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adalign/backend/internal/capture"
	"github.com/adalign/backend/internal/llm"
	"github.com/adalign/backend/internal/metrics"
	"github.com/adalign/backend/internal/platform"
	"github.com/adalign/backend/internal/prompt"
	"github.com/adalign/backend/internal/quota"
	"github.com/adalign/backend/internal/storage/models"
	"github.com/adalign/backend/pkg/logger"
	"github.com/adalign/backend/pkg/utils"
)

type Request struct {
	Ad             capture.AdAsset
	Platform       platform.Platform
	Headline       string
	Description    string
	Industry       string
	LandingPageURL string
	Audience       models.Audience
	UserEmail      string
	NetworkAddress string
}

// Result is the client-facing evaluation. Real and fallback results
// serialize identically.
type Result struct {
	OverallScore       int                        `json:"overallScore"`
	ComponentScores    models.ComponentScores     `json:"componentScores"`
	Suggestions        models.Suggestions         `json:"suggestions"`
	ElementComparisons []models.ElementComparison `json:"elementComparisons"`

	// ID is set once the evaluation has been stored.
	ID       string `json:"-"`
	fallback bool
}

func (r *Result) IsFallback() bool {
	return r.fallback
}

type AssetAcquirer interface {
	AcquireAdImage(ctx context.Context, asset capture.AdAsset, p platform.Platform) (*capture.AcquiredAsset, error)
	AcquireLandingPageImage(ctx context.Context, pageURL string) *capture.AcquiredAsset
}

type PageInspector interface {
	Inspect(ctx context.Context, pageURL string) (*capture.PageSummary, error)
}

type Repository interface {
	InsertEvaluation(ctx context.Context, eval *models.Evaluation) error
}

// Deps are the collaborators of an Evaluator. Accounts, Inspector and
// Repository may be nil.
type Deps struct {
	Limiter    *quota.Limiter
	Accounts   quota.AccountResolver
	Acquirer   AssetAcquirer
	Inspector  PageInspector
	Analyzer   llm.Analyzer
	Repository Repository

	AnalysisTimeout time.Duration
	InspectTimeout  time.Duration
	PersistTimeout  time.Duration
}

type Evaluator struct {
	deps Deps
}

func NewEvaluator(deps Deps) *Evaluator {
	if deps.AnalysisTimeout <= 0 {
		deps.AnalysisTimeout = 90 * time.Second
	}
	if deps.InspectTimeout <= 0 {
		deps.InspectTimeout = 10 * time.Second
	}
	if deps.PersistTimeout <= 0 {
		deps.PersistTimeout = 5 * time.Second
	}
	if deps.Limiter == nil {
		deps.Limiter = quota.NewLimiter(nil, quota.DefaultLimits())
	}
	return &Evaluator{deps: deps}
}

// caller is the quota subject of one request.
type caller struct {
	identity quota.Identity
	tier     quota.Tier
	account  *quota.Account
}

func (c caller) isAccount() bool {
	return c.account != nil
}

// Evaluate runs the pipeline. Only *InputError and *QuotaExceededError are
// returned; every other failure produces the fallback result.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		metrics.EvaluationsTotal.WithLabelValues(outcome).Inc()
		metrics.EvaluationDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Evaluation panicked, returning fallback",
				zap.Any("panic", r),
				zap.String("outcome", "fallback"),
				zap.Stack("stack"),
			)
			outcome = "fallback"
			res, err = FallbackResult(), nil
		}
	}()

	if err := validate(req); err != nil {
		outcome = "input_error"
		return nil, err
	}

	who := e.resolveCaller(ctx, req)
	decision := e.deps.Limiter.Check(ctx, who.identity, who.tier)
	if !decision.Allowed {
		outcome = "quota_exceeded"
		return nil, quotaError(who, decision)
	}

	ad, err := e.deps.Acquirer.AcquireAdImage(ctx, req.Ad, req.Platform)
	if err != nil {
		outcome = "input_error"
		return nil, adError(err)
	}

	page := e.deps.Acquirer.AcquireLandingPageImage(ctx, req.LandingPageURL)
	pageImage := ""
	if page != nil {
		pageImage = page.URL
	} else {
		logger.Warn("Landing page capture failed, analyzing ad only",
			zap.String("landing_page", req.LandingPageURL),
		)
	}

	text := prompt.Build(prompt.Input{
		SourceType:          ad.SourceType,
		Platform:            req.Platform,
		Audience:            req.Audience,
		Headline:            req.Headline,
		Description:         req.Description,
		Industry:            req.Industry,
		LandingPageText:     e.inspect(ctx, req.LandingPageURL),
		HasLandingPageImage: pageImage != "",
	})

	analysis, err := e.analyze(ctx, text, ad.URL, pageImage)
	if err != nil {
		outcome = "fallback"
		logger.Warn("Vision analysis failed, returning fallback",
			zap.String("outcome", "fallback"),
			zap.String("platform", string(req.Platform)),
			zap.String("ad_method", ad.ExtractionMethod),
			zap.Error(err),
		)
		return FallbackResult(), nil
	}

	res = &Result{
		OverallScore:       analysis.OverallScore,
		ComponentScores:    analysis.Scores,
		Suggestions:        analysis.Suggestions,
		ElementComparisons: analysis.ElementComparisons,
	}

	res.ID = e.persist(ctx, req, who, ad, page, res)
	e.recordUsage(ctx, who)

	logger.Info("Evaluation completed",
		zap.String("id", res.ID),
		zap.String("platform", string(req.Platform)),
		zap.String("ad_method", ad.ExtractionMethod),
		zap.Bool("landing_page_image", pageImage != ""),
		zap.Int("overall_score", res.OverallScore),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.LandingPageURL) == "" {
		return &InputError{Code: CodeNoLandingPage, Message: "landing page URL is required"}
	}
	if !req.Platform.Valid() {
		return &InputError{Code: CodeInvalidPlatform, Message: fmt.Sprintf("unsupported platform %q", req.Platform)}
	}
	if strings.TrimSpace(req.Ad.ImageURL) == "" && strings.TrimSpace(req.Ad.AdURL) == "" {
		return &InputError{Code: CodeNoAdAsset, Message: "provide an ad image or an ad URL", Err: capture.ErrNoAdAsset}
	}
	return nil
}

// resolveCaller picks the account quota for a known, active account and the
// network address quota otherwise.
func (e *Evaluator) resolveCaller(ctx context.Context, req Request) caller {
	anon := caller{identity: quota.IPIdentity(req.NetworkAddress), tier: quota.TierAnonymous}

	email := strings.TrimSpace(req.UserEmail)
	if email == "" || e.deps.Accounts == nil {
		return anon
	}

	acct, err := e.deps.Accounts.ResolveAccount(ctx, email)
	if err != nil {
		logger.Warn("Account lookup failed, using address quota",
			zap.String("email", utils.HashIdentity(email)),
			zap.Error(err),
		)
		return anon
	}
	if acct == nil || !acct.Active {
		return anon
	}
	return caller{identity: quota.AccountIdentity(acct.ID), tier: acct.Tier, account: acct}
}

func quotaError(who caller, d quota.Decision) *QuotaExceededError {
	if who.isAccount() {
		return &QuotaExceededError{
			Code:      CodeUsageLimitExceeded,
			Message:   fmt.Sprintf("You have used all %d evaluations included in your %s plan this month.", d.Limit, who.tier),
			Remaining: d.Remaining,
			Limit:     d.Limit,
			NextReset: d.NextReset,
		}
	}
	return &QuotaExceededError{
		Code:      CodeRateLimitExceeded,
		Message:   fmt.Sprintf("Free limit of %d evaluations per month reached. Create an account for more.", d.Limit),
		Remaining: d.Remaining,
		Limit:     d.Limit,
		NextReset: d.NextReset,
	}
}

func adError(err error) *InputError {
	if errors.Is(err, capture.ErrNoAdAsset) {
		return &InputError{Code: CodeNoAdAsset, Message: "provide an ad image or an ad URL", Err: err}
	}
	if errors.Is(err, capture.ErrImageTooLarge) {
		return &InputError{
			Code:    CodeInvalidRequest,
			Message: fmt.Sprintf("uploaded image exceeds %d pixels", capture.MaxUploadPixels),
			Err:     err,
		}
	}
	return &InputError{
		Code:    CodeAdScreenshotFailed,
		Message: "could not capture the ad from its URL; upload a screenshot instead",
		Err:     err,
	}
}

func (e *Evaluator) inspect(ctx context.Context, pageURL string) string {
	if e.deps.Inspector == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, e.deps.InspectTimeout)
	defer cancel()

	summary, err := e.deps.Inspector.Inspect(ctx, pageURL)
	if err != nil {
		logger.Debug("Landing page inspection failed", zap.String("url", pageURL), zap.Error(err))
		return ""
	}
	return summary.String()
}

func (e *Evaluator) analyze(ctx context.Context, text, adImage, pageImage string) (*llm.Analysis, error) {
	if e.deps.Analyzer == nil {
		return nil, errors.New("no vision analyzer configured")
	}
	ctx, cancel := context.WithTimeout(ctx, e.deps.AnalysisTimeout)
	defer cancel()
	return e.deps.Analyzer.Analyze(ctx, text, adImage, pageImage)
}

// persist stores the evaluation and returns its id, or "" when it was not
// stored.
func (e *Evaluator) persist(ctx context.Context, req Request, who caller, ad, page *capture.AcquiredAsset, res *Result) string {
	if e.deps.Repository == nil {
		return ""
	}

	eval := &models.Evaluation{
		ID:                 uuid.New().String(),
		Platform:           string(req.Platform),
		AdImageURL:         utils.ImageRef(ad.URL),
		AdSourceType:       string(ad.SourceType),
		AdExtractionMethod: ad.ExtractionMethod,
		AdFrameCount:       ad.FrameCount,
		LandingPageURL:     req.LandingPageURL,
		Audience:           req.Audience,
		Scores:             res.ComponentScores,
		OverallScore:       res.OverallScore,
		Suggestions:        res.Suggestions,
		ElementComparisons: res.ElementComparisons,
		CreatedAt:          time.Now().UTC(),
	}
	if who.isAccount() {
		eval.AccountID = who.account.ID
	}
	if page != nil {
		eval.LandingPageImageURL = utils.ImageRef(page.URL)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.deps.PersistTimeout)
	defer cancel()

	if err := e.deps.Repository.InsertEvaluation(ctx, eval); err != nil {
		metrics.PersistenceFailures.WithLabelValues("insert_evaluation").Inc()
		logger.Error("Failed to store evaluation", zap.String("id", eval.ID), zap.Error(err))
		return ""
	}
	return eval.ID
}

func (e *Evaluator) recordUsage(ctx context.Context, who caller) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.deps.PersistTimeout)
	defer cancel()

	err := e.deps.Limiter.RecordUsage(ctx, who.identity)
	switch {
	case err == nil:
	case errors.Is(err, quota.ErrNoStore):
		logger.Debug("Usage not recorded, no store configured")
	default:
		metrics.PersistenceFailures.WithLabelValues("record_usage").Inc()
		logger.Error("Failed to record usage",
			zap.String("kind", string(who.identity.Kind)),
			zap.String("identity", utils.HashIdentity(who.identity.Key)),
			zap.Error(err),
		)
	}
}

// Usage is the caller's standing against the monthly quota.
type Usage struct {
	Tier      quota.Tier `json:"tier"`
	Limit     int        `json:"limit"`
	Used      int        `json:"used"`
	Remaining int        `json:"remaining"`
	NextReset time.Time  `json:"nextReset"`
}

// Usage reports the quota the next evaluation from this caller would be
// charged against. It does not consume anything.
func (e *Evaluator) Usage(ctx context.Context, email, networkAddress string) Usage {
	who := e.resolveCaller(ctx, Request{UserEmail: email, NetworkAddress: networkAddress})
	d := e.deps.Limiter.Check(ctx, who.identity, who.tier)
	return Usage{
		Tier:      who.tier,
		Limit:     d.Limit,
		Used:      d.Used,
		Remaining: d.Remaining,
		NextReset: d.NextReset,
	}
}
