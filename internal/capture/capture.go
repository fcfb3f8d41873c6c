// Package capture turns ad references and landing-page URLs into images the
// vision model can read.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/adalign/backend/internal/platform"
)

var (
	ErrNoAdAsset       = errors.New("no ad image or ad URL provided")
	ErrAdCaptureFailed = errors.New("ad screenshot failed")
	ErrCaptureDisabled = errors.New("screenshot capture is not configured")
	ErrProviderStatus  = errors.New("capture provider returned an error status")
	ErrEmptyCapture    = errors.New("capture provider returned no image")
	ErrImageTooLarge   = errors.New("uploaded image exceeds the pixel limit")
)

type SourceType string

const (
	SourceUpload SourceType = "upload"
	SourceURL    SourceType = "url"
	SourceVideo  SourceType = "video"
)

const (
	MethodUpload             = "upload"
	MethodScreenshot         = "screenshot"
	MethodPreviewScreenshot  = "preview_screenshot"
	MethodVideoFrames        = "video_frames"
	MethodScreenshotFallback = "screenshot_fallback"
	MethodAlternate          = "alternate_screenshot"
)

// AdAsset is what the caller supplied for the ad creative.
type AdAsset struct {
	ImageURL string
	AdURL    string
}

type AcquiredAsset struct {
	URL              string
	SourceType       SourceType
	FrameCount       int
	ExtractionMethod string
	Provider         string
}

// Request is a provider-agnostic capture job.
type Request struct {
	URL                string
	ViewportWidth      int
	ViewportHeight     int
	FullPage           bool
	Delay              time.Duration
	WaitForSelector    string
	BlockAds           bool
	BlockTrackers      bool
	BlockCookieBanners bool
	Format             string
	// Video switches the provider into frame extraction.
	Video *platform.VideoStrategy
}

type Result struct {
	ImageURL   string
	FrameCount int
}

type Provider interface {
	Name() string
	Capture(ctx context.Context, req Request) (*Result, error)
}
