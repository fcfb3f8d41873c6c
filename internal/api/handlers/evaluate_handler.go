package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adalign/backend/internal/capture"
	"github.com/adalign/backend/internal/evaluation"
	"github.com/adalign/backend/internal/middleware/auth"
	"github.com/adalign/backend/internal/platform"
	"github.com/adalign/backend/internal/storage/models"
	"github.com/adalign/backend/pkg/logger"
)

const (
	CodeNotFound    = "NOT_FOUND"
	CodeInternal    = "INTERNAL_ERROR"
	CodeNotAllowed  = "METHOD_NOT_ALLOWED"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
)

type Evaluator interface {
	Evaluate(ctx context.Context, req evaluation.Request) (*evaluation.Result, error)
	Usage(ctx context.Context, email, networkAddress string) evaluation.Usage
}

type EvaluateRequest struct {
	AdData struct {
		Platform    string `json:"platform"`
		ImageURL    string `json:"imageUrl"`
		AdURL       string `json:"adUrl"`
		Headline    string `json:"headline"`
		Description string `json:"description"`
		Industry    string `json:"industry"`
	} `json:"adData"`
	LandingPageData struct {
		URL string `json:"url"`
	} `json:"landingPageData"`
	AudienceData models.Audience `json:"audienceData"`
	UserEmail    string          `json:"userEmail"`
}

type EvaluateHandler struct {
	evaluator Evaluator
}

func NewEvaluateHandler(evaluator Evaluator) *EvaluateHandler {
	return &EvaluateHandler{
		evaluator: evaluator,
	}
}

func (h *EvaluateHandler) HandleEvaluate(c *fiber.Ctx) error {
	var req EvaluateRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Debug("Failed to parse request body", zap.Error(err))
		return errorJSON(c, fiber.StatusBadRequest, evaluation.CodeInvalidRequest, "Invalid request body")
	}

	// An unknown platform is reported by the evaluator, after the landing
	// page check.
	p, err := platform.Parse(req.AdData.Platform)
	if err != nil {
		p = platform.Platform(req.AdData.Platform)
	}

	res, err := h.evaluator.Evaluate(c.UserContext(), evaluation.Request{
		Ad: capture.AdAsset{
			ImageURL: req.AdData.ImageURL,
			AdURL:    req.AdData.AdURL,
		},
		Platform:       p,
		Headline:       req.AdData.Headline,
		Description:    req.AdData.Description,
		Industry:       req.AdData.Industry,
		LandingPageURL: req.LandingPageData.URL,
		Audience:       req.AudienceData,
		UserEmail:      req.UserEmail,
		NetworkAddress: c.IP(),
	})
	if err != nil {
		return evaluationError(c, err)
	}
	if res.IsFallback() {
		logger.Debug("Serving fallback evaluation", zap.String("platform", string(p)))
	}

	return c.JSON(res)
}

func evaluationError(c *fiber.Ctx, err error) error {
	var inputErr *evaluation.InputError
	if errors.As(err, &inputErr) {
		return errorJSON(c, fiber.StatusBadRequest, inputErr.Code, inputErr.Message)
	}

	var quotaErr *evaluation.QuotaExceededError
	if errors.As(err, &quotaErr) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":                quotaErr.Message,
			"errorCode":            quotaErr.Code,
			"remainingEvaluations": quotaErr.Remaining,
			"nextReset":            quotaErr.NextReset.UTC().Format(time.RFC3339),
		})
	}

	logger.Error("Unexpected evaluation error", zap.Error(err))
	return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to evaluate ad")
}

// HandleUsage reports the caller's monthly allowance without consuming it.
// Account usage needs a verified identity; everyone else sees their
// network address allowance.
func (h *EvaluateHandler) HandleUsage(c *fiber.Ctx) error {
	usage := h.evaluator.Usage(c.UserContext(), auth.Email(c), c.IP())
	return c.JSON(usage)
}

// MethodNotAllowed answers every method on /evaluate except POST. Stray
// OPTIONS requests are answered as a permissive preflight.
func MethodNotAllowed(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodOptions {
		c.Set(fiber.HeaderAllow, "POST, OPTIONS")
		return c.SendStatus(fiber.StatusNoContent)
	}
	c.Set(fiber.HeaderAllow, "POST, OPTIONS")
	return errorJSON(c, fiber.StatusMethodNotAllowed, CodeNotAllowed, "Method not allowed")
}

func errorJSON(c *fiber.Ctx, status int, code, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":     msg,
		"errorCode": code,
	})
}
