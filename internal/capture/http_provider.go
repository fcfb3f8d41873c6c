package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/adalign/backend/internal/metrics"
	"github.com/adalign/backend/pkg/circuitbreaker"
	"github.com/adalign/backend/pkg/logger"
	"github.com/adalign/backend/pkg/utils"
)

const maxImageBytes = 20 << 20

type HTTPProviderConfig struct {
	Name     string
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// HTTPProvider drives a hosted screenshot API. The API either answers with
// image bytes or with a JSON document pointing at a stored image.
type HTTPProvider struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
	cb       *circuitbreaker.CircuitBreaker
}

func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	name := cfg.Name
	if name == "" {
		name = "screenshot-api"
	}

	cb := circuitbreaker.NewCircuitBreaker(name, circuitbreaker.Config{
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OnStateChange:    metrics.ObserveBreaker,
		Logger:           logger.GetLogger(),
	})

	return &HTTPProvider{
		name:     name,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   client,
		cb:       cb,
	}
}

func (p *HTTPProvider) Name() string {
	return p.name
}

type captureOptions struct {
	URL                string        `json:"url"`
	ViewportWidth      int           `json:"viewport_width,omitempty"`
	ViewportHeight     int           `json:"viewport_height,omitempty"`
	FullPage           bool          `json:"full_page"`
	Delay              int           `json:"delay,omitempty"`
	WaitForSelector    string        `json:"wait_for_selector,omitempty"`
	BlockAds           bool          `json:"block_ads"`
	BlockTrackers      bool          `json:"block_trackers"`
	BlockCookieBanners bool          `json:"block_cookie_banners"`
	Format             string        `json:"format,omitempty"`
	ResponseType       string        `json:"response_type"`
	Video              *videoOptions `json:"video,omitempty"`
}

type videoOptions struct {
	Frames     int       `json:"frames"`
	Timestamps []float64 `json:"timestamps"`
	Quality    string    `json:"quality"`
}

type captureResponse struct {
	URL      string `json:"url"`
	CacheURL string `json:"cache_url"`
	Frames   int    `json:"frames"`
	Error    string `json:"error"`
}

func (p *HTTPProvider) Capture(ctx context.Context, req Request) (*Result, error) {
	var result *Result
	err := p.cb.Execute(ctx, func() error {
		var err error
		result, err = p.do(ctx, req)
		return err
	})
	return result, err
}

func (p *HTTPProvider) do(ctx context.Context, req Request) (*Result, error) {
	opts := captureOptions{
		URL:                req.URL,
		ViewportWidth:      req.ViewportWidth,
		ViewportHeight:     req.ViewportHeight,
		FullPage:           req.FullPage,
		Delay:              int(req.Delay / time.Second),
		WaitForSelector:    req.WaitForSelector,
		BlockAds:           req.BlockAds,
		BlockTrackers:      req.BlockTrackers,
		BlockCookieBanners: req.BlockCookieBanners,
		Format:             req.Format,
		ResponseType:       "json",
	}
	if req.Video != nil {
		opts.Video = &videoOptions{
			Frames:     req.Video.FrameCount,
			Timestamps: req.Video.Timestamps,
			Quality:    req.Video.Quality,
		}
	}

	body, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal capture options: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build capture request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Access-Key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("capture request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %d %s", ErrProviderStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "image/") {
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		if len(data) == 0 {
			return nil, ErrEmptyCapture
		}
		return &Result{ImageURL: utils.EncodeDataURL(mediaType, data), FrameCount: frameCountOf(req, 0)}, nil
	}

	var parsed captureResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode capture response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrProviderStatus, parsed.Error)
	}

	imageURL := parsed.URL
	if imageURL == "" {
		imageURL = parsed.CacheURL
	}
	if imageURL == "" {
		return nil, ErrEmptyCapture
	}
	return &Result{ImageURL: imageURL, FrameCount: frameCountOf(req, parsed.Frames)}, nil
}

func frameCountOf(req Request, reported int) int {
	if req.Video == nil {
		return 0
	}
	if reported > 0 {
		return reported
	}
	return req.Video.FrameCount
}
