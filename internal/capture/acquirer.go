package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adalign/backend/internal/metrics"
	"github.com/adalign/backend/internal/platform"
	"github.com/adalign/backend/pkg/logger"
	"github.com/adalign/backend/pkg/utils"
)

type Config struct {
	PageTimeout        time.Duration
	PreviewTimeout     time.Duration
	VideoTimeout       time.Duration
	PageDelay          time.Duration
	PreviewDelay       time.Duration
	VideoDelay         time.Duration
	FallbackDelay      time.Duration
	ViewportWidth      int
	ViewportHeight     int
	MaxUploadDimension int
}

func DefaultConfig() Config {
	return Config{
		PageTimeout:        30 * time.Second,
		PreviewTimeout:     60 * time.Second,
		VideoTimeout:       75 * time.Second,
		PageDelay:          3 * time.Second,
		PreviewDelay:       8 * time.Second,
		VideoDelay:         5 * time.Second,
		FallbackDelay:      2 * time.Second,
		ViewportWidth:      1280,
		ViewportHeight:     800,
		MaxUploadDimension: 1600,
	}
}

// Acquirer resolves ad and landing-page images through a primary provider
// and an optional alternate one.
type Acquirer struct {
	primary   Provider
	alternate Provider
	cfg       Config
}

// NewAcquirer accepts nil providers. Without a primary provider only
// uploaded ad images can be evaluated.
func NewAcquirer(primary, alternate Provider, cfg Config) *Acquirer {
	return &Acquirer{primary: primary, alternate: alternate, cfg: cfg}
}

func (a *Acquirer) AcquireAdImage(ctx context.Context, asset AdAsset, p platform.Platform) (*AcquiredAsset, error) {
	if img := strings.TrimSpace(asset.ImageURL); img != "" {
		img, err := a.normalizeUpload(img)
		if err != nil {
			return nil, err
		}
		return &AcquiredAsset{
			URL:              img,
			SourceType:       SourceUpload,
			ExtractionMethod: MethodUpload,
		}, nil
	}

	adURL := strings.TrimSpace(asset.AdURL)
	if adURL == "" {
		return nil, ErrNoAdAsset
	}
	if a.primary == nil {
		return nil, fmt.Errorf("%w: %w", ErrAdCaptureFailed, ErrCaptureDisabled)
	}

	if p.IsVideoURL(adURL) {
		return a.acquireVideo(ctx, adURL, p)
	}
	return a.acquireStatic(ctx, adURL, p)
}

func (a *Acquirer) acquireVideo(ctx context.Context, adURL string, p platform.Platform) (*AcquiredAsset, error) {
	strategy := platform.Lookup(p).Video

	req := a.baseRequest(adURL)
	req.Delay = a.cfg.VideoDelay
	req.Video = &strategy

	res, err := a.capture(ctx, a.primary, req, a.cfg.VideoTimeout, MethodVideoFrames)
	if err == nil {
		frames := res.FrameCount
		if frames <= 0 {
			frames = strategy.FrameCount
		}
		return &AcquiredAsset{
			URL:              res.ImageURL,
			SourceType:       SourceVideo,
			FrameCount:       frames,
			ExtractionMethod: MethodVideoFrames,
			Provider:         a.primary.Name(),
		}, nil
	}

	logger.Warn("Video frame extraction failed, falling back to screenshot",
		zap.String("platform", p.String()),
		zap.Error(err),
	)

	req = a.baseRequest(adURL)
	req.Delay = a.cfg.FallbackDelay

	res, err = a.capture(ctx, a.primary, req, a.cfg.PageTimeout, MethodScreenshotFallback)
	if err != nil {
		return nil, fmt.Errorf("%w: video and fallback screenshot failed: %w", ErrAdCaptureFailed, err)
	}
	return &AcquiredAsset{
		URL:              res.ImageURL,
		SourceType:       SourceVideo,
		FrameCount:       1,
		ExtractionMethod: MethodScreenshotFallback,
		Provider:         a.primary.Name(),
	}, nil
}

func (a *Acquirer) acquireStatic(ctx context.Context, adURL string, p platform.Platform) (*AcquiredAsset, error) {
	req := a.baseRequest(adURL)
	method := MethodScreenshot
	timeout := a.cfg.PageTimeout
	req.Delay = a.cfg.PageDelay

	if p.IsPreviewURL(adURL) {
		method = MethodPreviewScreenshot
		timeout = a.cfg.PreviewTimeout
		req.Delay = a.cfg.PreviewDelay
		req.WaitForSelector = platform.Lookup(p).PreviewSelector
	}

	res, err := a.capture(ctx, a.primary, req, timeout, method)
	if err == nil {
		return &AcquiredAsset{URL: res.ImageURL, SourceType: SourceURL, ExtractionMethod: method, Provider: a.primary.Name()}, nil
	}
	if a.alternate == nil {
		return nil, fmt.Errorf("%w: %w", ErrAdCaptureFailed, err)
	}

	logger.Warn("Ad screenshot failed, trying alternate provider", zap.Error(err))

	res, altErr := a.capture(ctx, a.alternate, req, timeout, MethodAlternate)
	if altErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrAdCaptureFailed, altErr)
	}
	return &AcquiredAsset{URL: res.ImageURL, SourceType: SourceURL, ExtractionMethod: MethodAlternate, Provider: a.alternate.Name()}, nil
}

// AcquireLandingPageImage makes at most one attempt per provider. A nil
// result means the evaluation should continue ad-only.
func (a *Acquirer) AcquireLandingPageImage(ctx context.Context, pageURL string) *AcquiredAsset {
	req := a.baseRequest(pageURL)
	req.Delay = a.cfg.PageDelay
	req.BlockAds = true
	req.BlockTrackers = true
	req.BlockCookieBanners = true

	attempts := []struct {
		provider Provider
		method   string
	}{
		{a.primary, MethodScreenshot},
		{a.alternate, MethodAlternate},
	}

	for _, attempt := range attempts {
		if attempt.provider == nil {
			continue
		}
		res, err := a.capture(ctx, attempt.provider, req, a.cfg.PageTimeout, attempt.method)
		if err == nil {
			return &AcquiredAsset{
				URL:              res.ImageURL,
				SourceType:       SourceURL,
				ExtractionMethod: attempt.method,
				Provider:         attempt.provider.Name(),
			}
		}
		logger.Warn("Landing page screenshot failed",
			zap.String("provider", attempt.provider.Name()),
			zap.Error(err),
		)
	}
	return nil
}

func (a *Acquirer) baseRequest(target string) Request {
	return Request{
		URL:            target,
		ViewportWidth:  a.cfg.ViewportWidth,
		ViewportHeight: a.cfg.ViewportHeight,
		Format:         "jpg",
	}
}

func (a *Acquirer) capture(ctx context.Context, p Provider, req Request, timeout time.Duration, method string) (*Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := p.Capture(ctx, req)
	if err == nil && (res == nil || res.ImageURL == "") {
		err = ErrEmptyCapture
	}
	metrics.CaptureDuration.WithLabelValues(p.Name(), method).Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.CaptureAttempts.WithLabelValues(p.Name(), method, outcome).Inc()

	logger.Debug("Capture attempt finished",
		zap.String("provider", p.Name()),
		zap.String("method", method),
		zap.String("result", outcome),
		zap.Duration("duration", time.Since(start)),
	)

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (a *Acquirer) normalizeUpload(img string) (string, error) {
	if !utils.IsDataURL(img) {
		return img, nil
	}
	out, err := NormalizeUpload(img, a.cfg.MaxUploadDimension)
	if errors.Is(err, ErrImageTooLarge) {
		return "", err
	}
	if err != nil {
		logger.Warn("Upload normalization failed, using original image", zap.Error(err))
		return img, nil
	}
	return out, nil
}
