package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adalign/backend/internal/middleware/auth"
	"github.com/adalign/backend/internal/quota"
	"github.com/adalign/backend/internal/storage/models"
	"github.com/adalign/backend/internal/storage/sqlstore"
	"github.com/adalign/backend/pkg/logger"
	"github.com/adalign/backend/pkg/utils"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type HistoryStore interface {
	GetEvaluation(ctx context.Context, id string) (*models.Evaluation, error)
	ListEvaluations(ctx context.Context, accountID string, limit int) ([]models.Evaluation, error)
}

type EvaluationView struct {
	ID                  string                     `json:"id"`
	Platform            string                     `json:"platform"`
	AdSourceType        string                     `json:"adSourceType"`
	AdExtractionMethod  string                     `json:"adExtractionMethod"`
	AdFrameCount        int                        `json:"adFrameCount,omitempty"`
	LandingPageURL      string                     `json:"landingPageUrl"`
	Audience            models.Audience            `json:"audienceData"`
	OverallScore        int                        `json:"overallScore"`
	ComponentScores     models.ComponentScores     `json:"componentScores"`
	Suggestions         models.Suggestions         `json:"suggestions"`
	ElementComparisons  []models.ElementComparison `json:"elementComparisons"`
	HasLandingPageImage bool                       `json:"hasLandingPageImage"`
	CreatedAt           time.Time                  `json:"createdAt"`
}

func newEvaluationView(e *models.Evaluation) EvaluationView {
	comparisons := e.ElementComparisons
	if comparisons == nil {
		comparisons = []models.ElementComparison{}
	}
	return EvaluationView{
		ID:                  e.ID,
		Platform:            e.Platform,
		AdSourceType:        e.AdSourceType,
		AdExtractionMethod:  e.AdExtractionMethod,
		AdFrameCount:        e.AdFrameCount,
		LandingPageURL:      e.LandingPageURL,
		Audience:            e.Audience,
		OverallScore:        e.OverallScore,
		ComponentScores:     e.Scores,
		Suggestions:         e.Suggestions,
		ElementComparisons:  comparisons,
		HasLandingPageImage: e.LandingPageImageURL != "",
		CreatedAt:           e.CreatedAt,
	}
}

// HistoryHandler serves stored evaluations. Image payloads are not returned.
type HistoryHandler struct {
	store    HistoryStore
	accounts quota.AccountResolver
}

func NewHistoryHandler(store HistoryStore, accounts quota.AccountResolver) *HistoryHandler {
	return &HistoryHandler{
		store:    store,
		accounts: accounts,
	}
}

var errNoAccounts = errors.New("accounts are not configured")

// callerAccount resolves the verified caller to an account. A nil account
// with a nil error means the caller has no active account.
func (h *HistoryHandler) callerAccount(c *fiber.Ctx) (*quota.Account, error) {
	if h.accounts == nil {
		return nil, errNoAccounts
	}
	return h.accounts.ResolveAccount(c.UserContext(), auth.Email(c))
}

func (h *HistoryHandler) accountError(c *fiber.Ctx, err error) error {
	if errors.Is(err, errNoAccounts) {
		return errorJSON(c, fiber.StatusServiceUnavailable, CodeUnavailable, "Accounts are not configured")
	}
	logger.Error("Failed to resolve account",
		zap.String("email", utils.HashIdentity(auth.Email(c))),
		zap.Error(err),
	)
	return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to load evaluations")
}

func unauthorized(c *fiber.Ctx) error {
	return errorJSON(c, fiber.StatusUnauthorized, auth.CodeUnauthorized, "Sign in to view account data")
}

// ListEvaluations lists the verified caller's recent evaluations.
func (h *HistoryHandler) ListEvaluations(c *fiber.Ctx) error {
	if auth.Email(c) == "" {
		return unauthorized(c)
	}

	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	acct, err := h.callerAccount(c)
	if err != nil {
		return h.accountError(c, err)
	}

	views := []EvaluationView{}
	if acct == nil {
		return c.JSON(fiber.Map{"evaluations": views})
	}

	evals, err := h.store.ListEvaluations(c.UserContext(), acct.ID, limit)
	if err != nil {
		logger.Error("Failed to list evaluations", zap.String("account_id", acct.ID), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to load evaluations")
	}

	for i := range evals {
		views = append(views, newEvaluationView(&evals[i]))
	}
	return c.JSON(fiber.Map{"evaluations": views})
}

// GetEvaluation returns one evaluation owned by the verified caller. Other
// accounts' evaluations and anonymous ones are reported as not found.
func (h *HistoryHandler) GetEvaluation(c *fiber.Ctx) error {
	if auth.Email(c) == "" {
		return unauthorized(c)
	}
	id := c.Params("id")

	acct, err := h.callerAccount(c)
	if err != nil {
		return h.accountError(c, err)
	}

	eval, err := h.store.GetEvaluation(c.UserContext(), id)
	if errors.Is(err, sqlstore.ErrNotFound) || (err == nil && (acct == nil || eval.AccountID != acct.ID)) {
		return errorJSON(c, fiber.StatusNotFound, CodeNotFound, "Evaluation not found")
	}
	if err != nil {
		logger.Error("Failed to load evaluation", zap.String("id", id), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to load evaluation")
	}

	return c.JSON(newEvaluationView(eval))
}
