package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/adalign/backend/internal/metrics"
	"github.com/adalign/backend/pkg/circuitbreaker"
	"github.com/adalign/backend/pkg/logger"
	"github.com/adalign/backend/pkg/retry"
	"github.com/adalign/backend/pkg/utils"
)

const (
	defaultGeminiModel = "gemini-1.5-flash"
	maxInlineImage     = 15 << 20
)

// GeminiClient analyzes creatives with a Gemini model. Images are sent
// inline, so remote URLs are downloaded first.
type GeminiClient struct {
	client      *genai.Client
	model       *genai.GenerativeModel
	modelName   string
	http        *http.Client
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewGeminiClient(ctx context.Context, cfg ClientConfig) (*GeminiClient, error) {
	cfg = cfg.withDefaults()
	if cfg.Model == "" || strings.HasPrefix(cfg.Model, "gpt") {
		cfg.Model = defaultGeminiModel
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	model.ResponseMIMEType = "application/json"

	logger.Info("LLM client initialized",
		zap.String("provider", "gemini"),
		zap.String("model", cfg.Model),
	)

	return &GeminiClient{
		client:    client,
		model:     model,
		modelName: cfg.Model,
		http:      utils.NewPublicHTTPClient(20 * time.Second),
		timeout:   cfg.Timeout,
		cb: circuitbreaker.NewCircuitBreaker("gemini", circuitbreaker.Config{
			MaxRequests:      5,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			IsFailure:        countsAgainstBreaker,
			OnStateChange:    metrics.ObserveBreaker,
			Logger:           logger.GetLogger(),
		}),
		retryConfig: geminiRetryConfig(cfg.MaxAttempts),
	}, nil
}

func geminiRetryConfig(maxAttempts int) retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = maxAttempts
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = 5 * time.Second
	cfg.Retryable = geminiRetryable
	cfg.Logger = logger.GetLogger()
	return cfg
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func (g *GeminiClient) Analyze(ctx context.Context, prompt, adImageURL, pageImageURL string) (*Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()

	adBlob, err := g.loadImage(ctx, adImageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load ad image: %w", err)
	}
	parts := []genai.Part{genai.Text(prompt), adBlob}
	if pageImageURL != "" {
		pageBlob, err := g.loadImage(ctx, pageImageURL)
		if err != nil {
			logger.Warn("Landing page image unavailable for gemini, sending ad only", zap.Error(err))
		} else {
			parts = append(parts, pageBlob)
		}
	}

	var content string
	err = g.cb.Execute(ctx, func() error {
		var err error
		content, err = retry.DoWithResult(ctx, g.retryConfig, func() (string, error) {
			resp, err := g.model.GenerateContent(ctx, parts...)
			if err != nil {
				return "", fmt.Errorf("failed to generate content: %w", err)
			}
			if resp.UsageMetadata != nil {
				metrics.LLMTokensUsed.WithLabelValues(g.modelName, "prompt").Add(float64(resp.UsageMetadata.PromptTokenCount))
				metrics.LLMTokensUsed.WithLabelValues(g.modelName, "completion").Add(float64(resp.UsageMetadata.CandidatesTokenCount))
			}
			text, ok := responseText(resp)
			if !ok {
				return "", retry.Permanent(fmt.Errorf("%w: no text candidate", ErrInvalidResponse))
			}
			return text, nil
		})
		return err
	})
	if err != nil {
		metrics.LLMRequestDuration.WithLabelValues(g.cb.Name(), "error").Observe(time.Since(start).Seconds())
		return nil, err
	}

	analysis, err := ParseAnalysis(content)
	if err != nil {
		metrics.LLMRequestDuration.WithLabelValues(g.cb.Name(), "invalid").Observe(time.Since(start).Seconds())
		return nil, err
	}
	metrics.LLMRequestDuration.WithLabelValues(g.cb.Name(), "success").Observe(time.Since(start).Seconds())

	analysis.Model = g.modelName
	return analysis, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", false
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

func (g *GeminiClient) loadImage(ctx context.Context, ref string) (genai.Blob, error) {
	if utils.IsDataURL(ref) {
		mediaType, data, err := utils.ParseDataURL(ref)
		if err != nil {
			return genai.Blob{}, err
		}
		return genai.Blob{MIMEType: mediaType, Data: data}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return genai.Blob{}, err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return genai.Blob{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return genai.Blob{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxInlineImage))
	if err != nil {
		return genai.Blob{}, err
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(data)
	}
	return genai.Blob{MIMEType: mediaType, Data: data}, nil
}

func geminiRetryable(err error) bool {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return false
	}
	return !errors.Is(err, ErrInvalidResponse) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
