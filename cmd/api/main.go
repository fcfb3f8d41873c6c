package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/adalign/backend/internal/api"
	"github.com/adalign/backend/internal/api/handlers"
	rediscache "github.com/adalign/backend/internal/cache/redis"
	"github.com/adalign/backend/internal/capture"
	"github.com/adalign/backend/internal/evaluation"
	"github.com/adalign/backend/internal/llm"
	"github.com/adalign/backend/internal/metrics"
	"github.com/adalign/backend/internal/middleware/ratelimit"
	"github.com/adalign/backend/internal/quota"
	"github.com/adalign/backend/internal/scoring"
	"github.com/adalign/backend/internal/storage/sqlstore"
	"github.com/adalign/backend/pkg/config"
	appLogger "github.com/adalign/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting ad congruence API server")

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	ctx := context.Background()
	checks := map[string]handlers.Pinger{}

	// Interfaces below stay untyped nil when their backing store is absent.
	var (
		usageStore quota.Store
		accounts   quota.AccountResolver
		repository evaluation.Repository
		history    handlers.HistoryStore
	)

	var sqlClient *sqlstore.Client
	if cfg.Database.DSN != "" {
		sqlClient, err = sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			appLogger.Fatal("Failed to open database", zap.Error(err))
		}
		defer sqlClient.Close()

		if err := sqlClient.InitSchema(ctx); err != nil {
			appLogger.Fatal("Failed to initialize schema", zap.Error(err))
		}

		usageStore = sqlClient
		accounts = sqlClient
		repository = sqlClient
		history = sqlClient
		checks["database"] = sqlClient
	} else {
		appLogger.Warn("No database configured: evaluations are not stored and quotas fail open")
	}

	if cfg.Redis.Enabled {
		redisClient, err := rediscache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()

		usageStore = redisClient
		if sqlClient != nil {
			accounts = rediscache.NewAccountCache(redisClient, sqlClient, cfg.Redis.AccountCacheTTL())
		}
		checks["redis"] = redisClient
	}
	if cfg.Server.IdentityHeader == "" {
		appLogger.Warn("No identity header configured: account history and account usage are unavailable")
	}

	limiter := quota.NewLimiter(usageStore, quota.Limits{
		Anonymous: cfg.Quota.AnonymousLimit,
		Tiers: map[quota.Tier]int{
			quota.TierFree:       cfg.Quota.Tiers.Free,
			quota.TierPro:        cfg.Quota.Tiers.Pro,
			quota.TierEnterprise: cfg.Quota.Tiers.Enterprise,
		},
	})

	var primary, alternate capture.Provider
	if cfg.Capture.Enabled() {
		primary = capture.NewHTTPProvider(capture.HTTPProviderConfig{
			Name:     "screenshot-api",
			Endpoint: cfg.Capture.Endpoint,
			APIKey:   cfg.Capture.APIKey,
		})
	} else {
		appLogger.Warn("No screenshot credential configured: only uploaded ad images can be evaluated")
	}
	switch cfg.Capture.Alternate.Kind {
	case "http":
		alternate = capture.NewHTTPProvider(capture.HTTPProviderConfig{
			Name:     "screenshot-api-alternate",
			Endpoint: cfg.Capture.Alternate.Endpoint,
			APIKey:   cfg.Capture.Alternate.APIKey,
		})
	case "chromedp":
		alternate = capture.NewBrowserProvider(capture.BrowserConfig{})
	}

	acquirer := capture.NewAcquirer(primary, alternate, capture.Config{
		PageTimeout:        cfg.Capture.PageTimeout(),
		PreviewTimeout:     cfg.Capture.PreviewTimeout(),
		VideoTimeout:       cfg.Capture.VideoTimeout(),
		PageDelay:          time.Duration(cfg.Capture.PageDelayMs) * time.Millisecond,
		PreviewDelay:       time.Duration(cfg.Capture.PreviewDelayMs) * time.Millisecond,
		VideoDelay:         time.Duration(cfg.Capture.VideoDelayMs) * time.Millisecond,
		FallbackDelay:      time.Duration(cfg.Capture.FallbackDelayMs) * time.Millisecond,
		ViewportWidth:      cfg.Capture.ViewportWidth,
		ViewportHeight:     cfg.Capture.ViewportHeight,
		MaxUploadDimension: cfg.Capture.MaxUploadDimension,
	})

	llmConfig := llm.ClientConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout(),
		MaxAttempts: cfg.LLM.MaxAttempts,
	}
	var analyzer llm.Analyzer
	switch {
	case cfg.LLM.APIKey == "":
		appLogger.Warn("No vision model credential configured: every evaluation returns the fallback result")
	case cfg.LLM.Provider == "gemini":
		gemini, err := llm.NewGeminiClient(ctx, llmConfig)
		if err != nil {
			appLogger.Fatal("Failed to create Gemini client", zap.Error(err))
		}
		defer gemini.Close()
		analyzer = gemini
	default:
		analyzer = llm.NewClient(llmConfig)
	}

	var inspector *capture.Inspector
	if cfg.Capture.InspectEnabled {
		inspector = capture.NewInspector(cfg.Capture.InspectTimeout())
	}

	evalDeps := evaluation.Deps{
		Limiter:         limiter,
		Accounts:        accounts,
		Acquirer:        acquirer,
		Analyzer:        analyzer,
		Repository:      repository,
		AnalysisTimeout: cfg.LLM.Timeout(),
		InspectTimeout:  cfg.Capture.InspectTimeout(),
	}
	appDeps := api.Deps{
		Scoring:        scoring.NewEngine(scoring.WithSeed(cfg.Scoring.Seed)),
		InspectTimeout: cfg.Capture.InspectTimeout(),
		History:        history,
		Accounts:       accounts,
		Checks:         checks,
	}
	if inspector != nil {
		evalDeps.Inspector = inspector
		appDeps.Inspector = inspector
	}
	appDeps.Evaluator = evaluation.NewEvaluator(evalDeps)

	burst := ratelimit.New(ratelimit.Config{MaxRequestsPerMinute: cfg.Server.BurstPerMinute})
	defer burst.Stop()
	appDeps.Burst = burst

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	app := api.NewApp(api.Config{
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:      cfg.Server.BodyLimit,
		ProxyHeader:    cfg.Server.ProxyHeader,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Capture.MaxUploadBytes,
		RequestLogging: true,
		MetricsPath:    metricsPath,
		IdentityHeader: cfg.Server.IdentityHeader,
	}, appDeps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
