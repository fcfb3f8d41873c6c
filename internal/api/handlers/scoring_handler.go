package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adalign/backend/internal/capture"
	"github.com/adalign/backend/internal/evaluation"
	"github.com/adalign/backend/internal/platform"
	"github.com/adalign/backend/internal/scoring"
	"github.com/adalign/backend/pkg/logger"
)

type PageInspector interface {
	Inspect(ctx context.Context, pageURL string) (*capture.PageSummary, error)
}

type ScoringHandler struct {
	engine         *scoring.Engine
	inspector      PageInspector
	inspectTimeout time.Duration
}

// NewScoringHandler accepts a nil inspector; scores then use URL signals
// only.
func NewScoringHandler(engine *scoring.Engine, inspector PageInspector, inspectTimeout time.Duration) *ScoringHandler {
	if inspectTimeout <= 0 {
		inspectTimeout = 10 * time.Second
	}
	return &ScoringHandler{
		engine:         engine,
		inspector:      inspector,
		inspectTimeout: inspectTimeout,
	}
}

func (h *ScoringHandler) HandleScore(c *fiber.Ctx) error {
	var req struct {
		AdRef        string `json:"adRef"`
		PageURL      string `json:"pageUrl"`
		Platform     string `json:"platform"`
		Industry     string `json:"industry"`
		AudienceType string `json:"audienceType"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Debug("Failed to parse request body", zap.Error(err))
		return errorJSON(c, fiber.StatusBadRequest, evaluation.CodeInvalidRequest, "Invalid request body")
	}

	if strings.TrimSpace(req.PageURL) == "" {
		return errorJSON(c, fiber.StatusBadRequest, evaluation.CodeNoLandingPage, "pageUrl is required")
	}

	p := platform.Meta
	if req.Platform != "" {
		parsed, err := platform.Parse(req.Platform)
		if err != nil {
			return errorJSON(c, fiber.StatusBadRequest, evaluation.CodeInvalidPlatform, "Unsupported platform")
		}
		p = parsed
	}

	in := scoring.Input{
		AdRef:        req.AdRef,
		PageURL:      req.PageURL,
		Platform:     p,
		Industry:     req.Industry,
		AudienceType: req.AudienceType,
		Page:         h.pageSignals(c.UserContext(), req.PageURL),
	}

	return c.JSON(h.engine.Analyze(in))
}

func (h *ScoringHandler) pageSignals(ctx context.Context, pageURL string) *scoring.PageSignals {
	if h.inspector == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, h.inspectTimeout)
	defer cancel()

	summary, err := h.inspector.Inspect(ctx, pageURL)
	if err != nil {
		logger.Debug("Landing page inspection failed", zap.String("url", pageURL), zap.Error(err))
		return nil
	}
	return &scoring.PageSignals{
		HasHeadline: len(summary.Headings) > 0 || summary.Title != "",
		HasCTA:      len(summary.CTAs) > 0,
	}
}
