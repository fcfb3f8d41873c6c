package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalign/backend/internal/platform"
)

// ============================================================================
// Test Helpers
// ============================================================================

type fakeProvider struct {
	name string
	// respond is called once per Capture; nil means success.
	respond func(req Request) (*Result, error)

	mu    sync.Mutex
	calls []Request
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Capture(ctx context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.respond == nil {
		return &Result{ImageURL: "https://img.example.com/" + f.name + ".jpg"}, nil
	}
	return f.respond(req)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PageTimeout = time.Second
	cfg.PreviewTimeout = time.Second
	cfg.VideoTimeout = time.Second
	return cfg
}

var errTimeout = errors.New("provider timed out")

// ============================================================================
// Ad image
// ============================================================================

func TestAcquireAdImage_UploadNeedsNoNetwork(t *testing.T) {
	primary := &fakeProvider{name: "primary"}
	a := NewAcquirer(primary, nil, testConfig())

	got, err := a.AcquireAdImage(context.Background(), AdAsset{
		ImageURL: "https://cdn.example.com/creative.png",
		AdURL:    "https://www.tiktok.com/@brand/video/1",
	}, platform.TikTok)

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/creative.png", got.URL)
	assert.Equal(t, SourceUpload, got.SourceType)
	assert.Equal(t, MethodUpload, got.ExtractionMethod)
	assert.Zero(t, primary.callCount())
}

func TestAcquireAdImage_NoAsset(t *testing.T) {
	a := NewAcquirer(&fakeProvider{name: "primary"}, nil, testConfig())

	_, err := a.AcquireAdImage(context.Background(), AdAsset{ImageURL: "  "}, platform.Meta)

	assert.ErrorIs(t, err, ErrNoAdAsset)
}

func TestAcquireAdImage_CaptureDisabled(t *testing.T) {
	a := NewAcquirer(nil, nil, testConfig())

	_, err := a.AcquireAdImage(context.Background(), AdAsset{AdURL: "https://example.com/ad"}, platform.Meta)

	assert.ErrorIs(t, err, ErrAdCaptureFailed)
	assert.ErrorIs(t, err, ErrCaptureDisabled)
}

func TestAcquireAdImage_VideoFrames(t *testing.T) {
	primary := &fakeProvider{name: "primary", respond: func(req Request) (*Result, error) {
		return &Result{ImageURL: "https://img.example.com/frames.jpg", FrameCount: 4}, nil
	}}
	a := NewAcquirer(primary, nil, testConfig())

	got, err := a.AcquireAdImage(context.Background(), AdAsset{AdURL: "https://www.tiktok.com/@brand/video/1"}, platform.TikTok)

	require.NoError(t, err)
	assert.Equal(t, SourceVideo, got.SourceType)
	assert.Equal(t, MethodVideoFrames, got.ExtractionMethod)
	assert.Equal(t, 4, got.FrameCount)
	require.Equal(t, 1, primary.callCount())
	require.NotNil(t, primary.calls[0].Video)
	assert.Equal(t, platform.Lookup(platform.TikTok).Video.FrameCount, primary.calls[0].Video.FrameCount)
}

// A TikTok video URL whose frame extraction times out falls back to a plain
// screenshot with a shorter delay.
func TestAcquireAdImage_VideoFallsBackToScreenshot(t *testing.T) {
	primary := &fakeProvider{name: "primary", respond: func(req Request) (*Result, error) {
		if req.Video != nil {
			return nil, errTimeout
		}
		return &Result{ImageURL: "https://img.example.com/still.jpg"}, nil
	}}
	cfg := testConfig()
	a := NewAcquirer(primary, nil, cfg)

	got, err := a.AcquireAdImage(context.Background(), AdAsset{AdURL: "https://www.tiktok.com/@brand/video/1"}, platform.TikTok)

	require.NoError(t, err)
	assert.Equal(t, SourceVideo, got.SourceType)
	assert.Equal(t, MethodScreenshotFallback, got.ExtractionMethod)
	assert.Equal(t, "https://img.example.com/still.jpg", got.URL)
	assert.Equal(t, 1, got.FrameCount)

	require.Equal(t, 2, primary.callCount())
	assert.Equal(t, cfg.VideoDelay, primary.calls[0].Delay)
	assert.Equal(t, cfg.FallbackDelay, primary.calls[1].Delay)
	assert.Less(t, primary.calls[1].Delay, primary.calls[0].Delay)
	assert.Nil(t, primary.calls[1].Video)
}

func TestAcquireAdImage_VideoAndFallbackFail(t *testing.T) {
	primary := &fakeProvider{name: "primary", respond: func(Request) (*Result, error) { return nil, errTimeout }}
	alternate := &fakeProvider{name: "alternate"}
	a := NewAcquirer(primary, alternate, testConfig())

	_, err := a.AcquireAdImage(context.Background(), AdAsset{AdURL: "https://www.instagram.com/reel/abc"}, platform.Meta)

	assert.ErrorIs(t, err, ErrAdCaptureFailed)
	assert.ErrorIs(t, err, errTimeout)
	assert.Equal(t, 2, primary.callCount())
	assert.Zero(t, alternate.callCount())
}

func TestAcquireAdImage_StaticAndPreview(t *testing.T) {
	tests := []struct {
		name       string
		platform   platform.Platform
		url        string
		wantMethod string
		wantDelay  func(Config) time.Duration
		wantWait   bool
	}{
		{
			name:       "plain screenshot",
			platform:   platform.LinkedIn,
			url:        "https://www.linkedin.com/feed/update/urn:li:activity:1",
			wantMethod: MethodScreenshot,
			wantDelay:  func(c Config) time.Duration { return c.PageDelay },
		},
		{
			name:       "meta ads library preview",
			platform:   platform.Meta,
			url:        "https://www.facebook.com/ads/library/?id=123",
			wantMethod: MethodPreviewScreenshot,
			wantDelay:  func(c Config) time.Duration { return c.PreviewDelay },
			wantWait:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &fakeProvider{name: "primary"}
			cfg := testConfig()
			a := NewAcquirer(primary, nil, cfg)

			got, err := a.AcquireAdImage(context.Background(), AdAsset{AdURL: tt.url}, tt.platform)

			require.NoError(t, err)
			assert.Equal(t, SourceURL, got.SourceType)
			assert.Equal(t, tt.wantMethod, got.ExtractionMethod)
			require.Equal(t, 1, primary.callCount())
			assert.Equal(t, tt.wantDelay(cfg), primary.calls[0].Delay)
			assert.Equal(t, tt.wantWait, primary.calls[0].WaitForSelector != "")
		})
	}
}

func TestAcquireAdImage_StaticUsesAlternate(t *testing.T) {
	primary := &fakeProvider{name: "primary", respond: func(Request) (*Result, error) { return nil, errTimeout }}
	alternate := &fakeProvider{name: "alternate"}
	a := NewAcquirer(primary, alternate, testConfig())

	got, err := a.AcquireAdImage(context.Background(), AdAsset{AdURL: "https://example.com/banner"}, platform.Google)

	require.NoError(t, err)
	assert.Equal(t, MethodAlternate, got.ExtractionMethod)
	assert.Equal(t, "alternate", got.Provider)
}

func TestAcquireAdImage_EmptyProviderResult(t *testing.T) {
	primary := &fakeProvider{name: "primary", respond: func(Request) (*Result, error) { return &Result{}, nil }}
	a := NewAcquirer(primary, nil, testConfig())

	_, err := a.AcquireAdImage(context.Background(), AdAsset{AdURL: "https://example.com/banner"}, platform.Google)

	assert.ErrorIs(t, err, ErrAdCaptureFailed)
	assert.ErrorIs(t, err, ErrEmptyCapture)
}

// ============================================================================
// Landing page
// ============================================================================

func TestAcquireLandingPage_Primary(t *testing.T) {
	primary := &fakeProvider{name: "primary"}
	alternate := &fakeProvider{name: "alternate"}
	a := NewAcquirer(primary, alternate, testConfig())

	got := a.AcquireLandingPageImage(context.Background(), "https://shop.example.com")

	require.NotNil(t, got)
	assert.Equal(t, MethodScreenshot, got.ExtractionMethod)
	assert.Zero(t, alternate.callCount())

	req := primary.calls[0]
	assert.True(t, req.BlockCookieBanners)
	assert.True(t, req.BlockAds)
	assert.True(t, req.BlockTrackers)
	assert.Equal(t, 1280, req.ViewportWidth)
	assert.Equal(t, 800, req.ViewportHeight)
}

func TestAcquireLandingPage_ExactlyOneAlternateAttempt(t *testing.T) {
	primary := &fakeProvider{name: "primary", respond: func(Request) (*Result, error) { return nil, errTimeout }}
	alternate := &fakeProvider{name: "alternate"}
	a := NewAcquirer(primary, alternate, testConfig())

	got := a.AcquireLandingPageImage(context.Background(), "https://shop.example.com")

	require.NotNil(t, got)
	assert.Equal(t, MethodAlternate, got.ExtractionMethod)
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 1, alternate.callCount())
}

func TestAcquireLandingPage_BothFail(t *testing.T) {
	fail := func(Request) (*Result, error) { return nil, errTimeout }
	primary := &fakeProvider{name: "primary", respond: fail}
	alternate := &fakeProvider{name: "alternate", respond: fail}
	a := NewAcquirer(primary, alternate, testConfig())

	assert.Nil(t, a.AcquireLandingPageImage(context.Background(), "https://shop.example.com"))
	assert.Equal(t, 1, alternate.callCount())
}

func TestAcquireLandingPage_NoProviders(t *testing.T) {
	a := NewAcquirer(nil, nil, testConfig())
	assert.Nil(t, a.AcquireLandingPageImage(context.Background(), "https://shop.example.com"))
}

func TestCapture_EnforcesTimeout(t *testing.T) {
	slow := &blockingProvider{}
	cfg := testConfig()
	cfg.PageTimeout = 20 * time.Millisecond
	a := NewAcquirer(slow, nil, cfg)

	start := time.Now()
	got := a.AcquireLandingPageImage(context.Background(), "https://shop.example.com")

	assert.Nil(t, got)
	assert.Less(t, time.Since(start), time.Second)
}

type blockingProvider struct{}

func (blockingProvider) Name() string { return "blocking" }

func (blockingProvider) Capture(ctx context.Context, _ Request) (*Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
