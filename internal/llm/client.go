package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/adalign/backend/internal/metrics"
	"github.com/adalign/backend/pkg/circuitbreaker"
	"github.com/adalign/backend/pkg/logger"
	"github.com/adalign/backend/pkg/retry"
)

type ClientConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	MaxAttempts int
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Model == "" {
		c.Model = "gpt-4o"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2000
	}
	if c.Timeout <= 0 {
		c.Timeout = 90 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
	return c
}

// Client analyzes creatives with an OpenAI vision model.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	cb := circuitbreaker.NewCircuitBreaker("openai", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		IsFailure:        countsAgainstBreaker,
		OnStateChange:    metrics.ObserveBreaker,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.DefaultConfig()
	retryConfig.MaxAttempts = cfg.MaxAttempts
	retryConfig.InitialDelay = time.Second
	retryConfig.MaxDelay = 5 * time.Second
	retryConfig.Retryable = isRetryable
	retryConfig.Logger = logger.GetLogger()

	logger.Info("LLM client initialized",
		zap.String("provider", "openai"),
		zap.String("model", cfg.Model),
	)

	return &Client{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) Analyze(ctx context.Context, prompt, adImageURL, pageImageURL string) (*Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: prompt},
		imagePart(adImageURL),
	}
	if pageImageURL != "" {
		parts = append(parts, imagePart(pageImageURL))
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	start := time.Now()
	var content string

	err := c.cb.Execute(ctx, func() error {
		var err error
		content, err = retry.DoWithResult(ctx, c.retryConfig, func() (string, error) {
			resp, err := c.client.CreateChatCompletion(ctx, req)
			if err != nil {
				return "", fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return "", retry.Permanent(fmt.Errorf("%w: no choices", ErrInvalidResponse))
			}

			metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
				zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
			)

			return resp.Choices[0].Message.Content, nil
		})
		return err
	})
	if err != nil {
		metrics.LLMRequestDuration.WithLabelValues(c.cb.Name(), "error").Observe(time.Since(start).Seconds())
		return nil, err
	}

	analysis, err := ParseAnalysis(content)
	if err != nil {
		metrics.LLMRequestDuration.WithLabelValues(c.cb.Name(), "invalid").Observe(time.Since(start).Seconds())
		return nil, err
	}
	metrics.LLMRequestDuration.WithLabelValues(c.cb.Name(), "success").Observe(time.Since(start).Seconds())

	analysis.Model = c.model
	return analysis, nil
}

func imagePart(u string) openai.ChatMessagePart {
	return openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL:    u,
			Detail: openai.ImageURLDetailHigh,
		},
	}
}

// isRetryable keeps client errors (bad key, rejected image) out of the retry
// loop; rate limiting and server errors are retried.
func isRetryable(err error) bool {
	if errors.Is(err, ErrInvalidResponse) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500 || code == 0
}

func countsAgainstBreaker(err error) bool {
	return !errors.Is(err, ErrInvalidResponse)
}
