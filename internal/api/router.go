// Package api assembles the fiber application.
package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/adalign/backend/internal/api/handlers"
	"github.com/adalign/backend/internal/evaluation"
	"github.com/adalign/backend/internal/metrics"
	"github.com/adalign/backend/internal/middleware/auth"
	"github.com/adalign/backend/internal/middleware/ratelimit"
	"github.com/adalign/backend/internal/middleware/security"
	"github.com/adalign/backend/internal/middleware/validation"
	"github.com/adalign/backend/internal/quota"
	"github.com/adalign/backend/internal/scoring"
	"github.com/adalign/backend/pkg/logger"
)

type Config struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BodyLimit      int
	ProxyHeader    string
	AllowedOrigins string
	MaxUploadBytes int
	IsDevelopment  bool
	RequestLogging bool
	MetricsPath    string
	IdentityHeader string
}

// Deps are the services behind the routes. Only Evaluator is required;
// History, Accounts and Inspector may be nil.
type Deps struct {
	Evaluator      handlers.Evaluator
	Scoring        *scoring.Engine
	Inspector      handlers.PageInspector
	InspectTimeout time.Duration
	History        handlers.HistoryStore
	Accounts       quota.AccountResolver
	Burst          *ratelimit.RateLimiter
	Checks         map[string]handlers.Pinger
}

func NewApp(cfg Config, deps Deps) *fiber.App {
	if cfg.AllowedOrigins == "" {
		cfg.AllowedOrigins = "*"
	}
	if deps.Scoring == nil {
		deps.Scoring = scoring.NewEngine()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BodyLimit:    cfg.BodyLimit,
		ProxyHeader:  cfg.ProxyHeader,
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	if cfg.RequestLogging {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{IsDevelopment: cfg.IsDevelopment}))
	app.Use(auth.Identity(auth.Config{Header: cfg.IdentityHeader}))

	if cfg.MetricsPath != "" {
		app.Get(cfg.MetricsPath, metrics.MetricsHandler())
	}

	evaluateHandler := handlers.NewEvaluateHandler(deps.Evaluator)
	scoringHandler := handlers.NewScoringHandler(deps.Scoring, deps.Inspector, deps.InspectTimeout)
	healthHandler := handlers.NewHealthHandler(deps.Checks)

	// Routes that fetch caller-supplied URLs share the burst budget.
	guarded := func(chain ...fiber.Handler) []fiber.Handler {
		if deps.Burst == nil {
			return chain
		}
		return append([]fiber.Handler{deps.Burst.Middleware()}, chain...)
	}
	evaluateChain := guarded(
		validation.Middleware(validation.Config{MaxUploadBytes: cfg.MaxUploadBytes}),
		evaluateHandler.HandleEvaluate,
	)

	app.Post("/evaluate", evaluateChain...)
	app.All("/evaluate", handlers.MethodNotAllowed)

	api := app.Group("/api/v1")

	api.Post("/evaluate", evaluateChain...)
	api.All("/evaluate", handlers.MethodNotAllowed)
	api.Post("/score", guarded(scoringHandler.HandleScore)...)
	api.Get("/usage", evaluateHandler.HandleUsage)

	if deps.History != nil {
		historyHandler := handlers.NewHistoryHandler(deps.History, deps.Accounts)
		api.Get("/evaluations", historyHandler.ListEvaluations)
		api.Get("/evaluations/:id", historyHandler.GetEvaluation)
	}

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	return app
}

// errorHandler renders errors that escape handlers in the same shape as
// handler errors.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	errorCode := handlers.CodeInternal
	msg := "Internal server error"
	switch code {
	case fiber.StatusNotFound:
		errorCode, msg = handlers.CodeNotFound, "Not found"
	case fiber.StatusMethodNotAllowed:
		errorCode, msg = handlers.CodeNotAllowed, "Method not allowed"
	case fiber.StatusRequestEntityTooLarge:
		errorCode, msg = evaluation.CodeInvalidRequest, "Request body too large"
	case fiber.StatusBadRequest:
		errorCode, msg = evaluation.CodeInvalidRequest, fe.Message
	default:
		logger.Error("Unhandled request error",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}

	return c.Status(code).JSON(fiber.Map{
		"error":     msg,
		"errorCode": errorCode,
	})
}
