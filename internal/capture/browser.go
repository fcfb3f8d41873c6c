package capture

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/adalign/backend/pkg/logger"
	"github.com/adalign/backend/pkg/utils"
)

const hideCookieBannersJS = `(() => {
  const selectors = [
    '#onetrust-banner-sdk', '#CybotCookiebotDialog', '.cc-window', '.cookie-banner',
    '[id*="cookie-consent"]', '[class*="cookie-consent"]', '[aria-label*="cookie" i]'
  ];
  for (const sel of selectors) {
    document.querySelectorAll(sel).forEach(el => el.style.setProperty('display', 'none', 'important'));
  }
  return true;
})()`

const seekVideoJS = `(() => {
  const v = document.querySelector('video');
  if (!v) { return false; }
  v.muted = true;
  v.pause();
  v.currentTime = %f;
  return true;
})()`

type BrowserConfig struct {
	UserAgent string
	// ExecPath overrides Chrome discovery.
	ExecPath string
	Quality  int
}

// BrowserProvider screenshots pages in a local headless Chrome. It is the
// alternate provider when no second screenshot API is configured.
type BrowserProvider struct {
	opts    []chromedp.ExecAllocatorOption
	quality int
}

func NewBrowserProvider(cfg BrowserConfig) *BrowserProvider {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36`
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.UserAgent(userAgent),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	quality := cfg.Quality
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	return &BrowserProvider{opts: opts, quality: quality}
}

func (b *BrowserProvider) Name() string {
	return "chromedp"
}

func (b *BrowserProvider) Capture(ctx context.Context, req Request) (*Result, error) {
	if err := utils.CheckPublicURL(ctx, req.URL); err != nil {
		return nil, err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.opts...)
	defer cancelAlloc()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(taskCtx, b.tasks(req, &buf)); err != nil {
		logger.Debug("Browser capture failed", zap.String("url", req.URL), zap.Error(err))
		return nil, fmt.Errorf("browser capture failed: %w", err)
	}
	if len(buf) == 0 {
		return nil, ErrEmptyCapture
	}

	mediaType := "image/png"
	if req.FullPage && b.quality < 100 {
		mediaType = "image/jpeg"
	}

	res := &Result{ImageURL: utils.EncodeDataURL(mediaType, buf)}
	if req.Video != nil {
		res.FrameCount = 1
	}
	return res, nil
}

func (b *BrowserProvider) tasks(req Request, buf *[]byte) chromedp.Tasks {
	width, height := req.ViewportWidth, req.ViewportHeight
	if width <= 0 || height <= 0 {
		width, height = 1280, 800
	}

	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(req.URL),
	}
	if req.WaitForSelector != "" {
		tasks = append(tasks, chromedp.WaitVisible(req.WaitForSelector, chromedp.ByQuery))
	}
	if req.Delay > 0 {
		tasks = append(tasks, chromedp.Sleep(req.Delay))
	}
	if req.BlockCookieBanners {
		tasks = append(tasks, chromedp.Evaluate(hideCookieBannersJS, nil))
	}
	if req.Video != nil && len(req.Video.Timestamps) > 0 {
		// a single representative frame; the browser cannot tile several
		var seeked bool
		tasks = append(tasks, chromedp.Evaluate(fmt.Sprintf(seekVideoJS, req.Video.Timestamps[0]), &seeked))
	}

	if req.FullPage {
		tasks = append(tasks, chromedp.FullScreenshot(buf, b.quality))
	} else {
		tasks = append(tasks, chromedp.CaptureScreenshot(buf))
	}
	return tasks
}
