package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalign/backend/internal/platform"
	"github.com/adalign/backend/pkg/utils"
)

// ============================================================================
// HTTP provider
// ============================================================================

func TestHTTPProvider_JSONResponse(t *testing.T) {
	var got captureOptions
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key-123", r.Header.Get("X-Access-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://cdn.shots.example/abc.jpg","frames":3}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPProviderConfig{Endpoint: srv.URL, APIKey: "key-123"})
	strategy := platform.Lookup(platform.Meta).Video

	res, err := p.Capture(context.Background(), Request{
		URL:                "https://www.instagram.com/reel/abc",
		ViewportWidth:      1280,
		ViewportHeight:     800,
		Delay:              5 * time.Second,
		BlockCookieBanners: true,
		Video:              &strategy,
	})

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.shots.example/abc.jpg", res.ImageURL)
	assert.Equal(t, 3, res.FrameCount)

	assert.Equal(t, "https://www.instagram.com/reel/abc", got.URL)
	assert.Equal(t, 5, got.Delay)
	assert.True(t, got.BlockCookieBanners)
	require.NotNil(t, got.Video)
	assert.Equal(t, strategy.Timestamps, got.Video.Timestamps)
}

func TestHTTPProvider_ImageResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff, 0xd9})
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPProviderConfig{Endpoint: srv.URL, APIKey: "k"})
	res, err := p.Capture(context.Background(), Request{URL: "https://shop.example.com"})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ImageURL, "data:image/jpeg;base64,"))
	assert.Zero(t, res.FrameCount)
}

func TestHTTPProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "quota exhausted", http.StatusPaymentRequired)
			},
			wantErr: ErrProviderStatus,
		},
		{
			name: "error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error":"navigation timeout"}`))
			},
			wantErr: ErrProviderStatus,
		},
		{
			name: "no url",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
			wantErr: ErrEmptyCapture,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p := NewHTTPProvider(HTTPProviderConfig{Endpoint: srv.URL})
			_, err := p.Capture(context.Background(), Request{URL: "https://shop.example.com"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHTTPProvider_HonoursContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPProviderConfig{Endpoint: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Capture(ctx, Request{URL: "https://shop.example.com"})
	assert.Error(t, err)
}

// ============================================================================
// Inspector
// ============================================================================

const landingHTML = `<!doctype html>
<html><head>
<title>  Spring Sale | Acme Running </title>
<meta name="description" content="Lightweight trail shoes, 20% off this week.">
</head><body>
<h1>Run further for less</h1>
<h2>Free returns</h2>
<a class="btn" href="/shop">Shop now</a>
<button>Shop now</button>
<input type="submit" value="Get 20% off">
</body></html>`

func testInspector(srv *httptest.Server) *Inspector {
	i := NewInspector(time.Second)
	i.client = srv.Client()
	return i
}

func TestInspector_ExtractsSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(landingHTML))
	}))
	defer srv.Close()

	summary, err := testInspector(srv).Inspect(context.Background(), srv.URL)

	require.NoError(t, err)
	assert.Equal(t, "Spring Sale | Acme Running", summary.Title)
	assert.Equal(t, "Lightweight trail shoes, 20% off this week.", summary.Description)
	assert.Equal(t, []string{"Run further for less", "Free returns"}, summary.Headings)
	assert.Equal(t, []string{"Shop now", "Get 20% off"}, summary.CTAs)
	assert.False(t, summary.HTTPS)

	text := summary.String()
	assert.Contains(t, text, "Title: Spring Sale | Acme Running")
	assert.Contains(t, text, "Calls to action: Shop now | Get 20% off")
}

func TestInspector_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testInspector(srv).Inspect(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestInspector_RefusesInternalAddresses(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`<title>internal-admin</title><h1>db password</h1>`))
	}))
	defer srv.Close()

	summary, err := NewInspector(time.Second).Inspect(context.Background(), srv.URL)

	assert.ErrorIs(t, err, utils.ErrNonPublicAddress)
	assert.Nil(t, summary)
	assert.Zero(t, hits)
}

func TestPageSummary_NilString(t *testing.T) {
	var s *PageSummary
	assert.Empty(t, s.String())
}

// ============================================================================
// Upload normalization
// ============================================================================

func pngDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 10 {
		img.Set(x, h/2, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return utils.EncodeDataURL("image/png", buf.Bytes())
}

// oversizedPNG is a valid 1x1 PNG whose header claims w x h pixels.
func oversizedPNG(t *testing.T, w, h uint32) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	data := buf.Bytes()
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return utils.EncodeDataURL("image/png", data)
}

func TestNormalizeUpload_Downscales(t *testing.T) {
	in := pngDataURL(t, 2000, 1000)

	out, err := NormalizeUpload(in, 1000)
	require.NoError(t, err)

	mediaType, data, err := utils.ParseDataURL(out)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mediaType)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Width)
	assert.Equal(t, 500, cfg.Height)
}

func TestNormalizeUpload_SmallImageUntouched(t *testing.T) {
	in := pngDataURL(t, 200, 100)

	out, err := NormalizeUpload(in, 1000)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNormalizeUpload_Garbage(t *testing.T) {
	_, err := NormalizeUpload(utils.EncodeDataURL("image/png", []byte("not an image")), 100)
	assert.Error(t, err)
}

func TestNormalizeUpload_RejectsOversizedHeader(t *testing.T) {
	for _, maxDim := range []int{0, 1600} {
		_, err := NormalizeUpload(oversizedPNG(t, 60000, 60000), maxDim)
		assert.ErrorIs(t, err, ErrImageTooLarge)
	}
}

func TestAcquirer_RejectsOversizedUpload(t *testing.T) {
	a := NewAcquirer(nil, nil, testConfig())

	_, err := a.AcquireAdImage(context.Background(), AdAsset{ImageURL: oversizedPNG(t, 8000, 8000)}, platform.Meta)

	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestAcquirer_NormalizesLargeUploads(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadDimension = 500
	a := NewAcquirer(nil, nil, cfg)

	got, err := a.AcquireAdImage(context.Background(), AdAsset{ImageURL: pngDataURL(t, 1200, 600)}, platform.Meta)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.URL, "data:image/jpeg;base64,"))
}

// ============================================================================
// Browser provider
// ============================================================================

func TestBrowserProvider_Tasks(t *testing.T) {
	b := NewBrowserProvider(BrowserConfig{})
	var buf []byte

	plain := b.tasks(Request{URL: "https://shop.example.com"}, &buf)
	assert.Len(t, plain, 3)

	strategy := platform.Lookup(platform.TikTok).Video
	full := b.tasks(Request{
		URL:                "https://shop.example.com",
		WaitForSelector:    "main",
		Delay:              time.Second,
		BlockCookieBanners: true,
		FullPage:           true,
		Video:              &strategy,
	}, &buf)
	assert.Len(t, full, 7)
	assert.Equal(t, "chromedp", b.Name())
}

func TestBrowserProvider_RefusesInternalAddresses(t *testing.T) {
	b := NewBrowserProvider(BrowserConfig{})

	_, err := b.Capture(context.Background(), Request{URL: "http://169.254.169.254/latest/meta-data"})

	assert.ErrorIs(t, err, utils.ErrNonPublicAddress)
}
