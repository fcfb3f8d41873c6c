package validation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalign/backend/pkg/utils"
)

func newApp(cfg Config) *fiber.App {
	app := fiber.New()
	app.Post("/evaluate", Middleware(cfg), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestMiddleware(t *testing.T) {
	bigUpload := utils.EncodeDataURL("image/png", make([]byte, 2048))

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
	}{
		{
			name:        "valid request",
			contentType: fiber.MIMEApplicationJSON,
			body:        `{"adData":{"platform":"meta","adUrl":"https://www.facebook.com/ads/library/?id=1"},"landingPageData":{"url":"https://shop.example.com"}}`,
			wantStatus:  fiber.StatusOK,
		},
		{
			name:        "charset suffix accepted",
			contentType: "application/json; charset=utf-8",
			body:        `{"landingPageData":{"url":"https://shop.example.com"}}`,
			wantStatus:  fiber.StatusOK,
		},
		{
			name:        "missing fields pass through",
			contentType: fiber.MIMEApplicationJSON,
			body:        `{}`,
			wantStatus:  fiber.StatusOK,
		},
		{
			name:        "form content type",
			contentType: fiber.MIMEApplicationForm,
			body:        `a=b`,
			wantStatus:  fiber.StatusUnsupportedMediaType,
		},
		{
			name:        "malformed json",
			contentType: fiber.MIMEApplicationJSON,
			body:        `{"adData":`,
			wantStatus:  fiber.StatusBadRequest,
		},
		{
			name:        "landing page scheme",
			contentType: fiber.MIMEApplicationJSON,
			body:        `{"landingPageData":{"url":"ftp://shop.example.com"}}`,
			wantStatus:  fiber.StatusBadRequest,
		},
		{
			name:        "ad url without host",
			contentType: fiber.MIMEApplicationJSON,
			body:        `{"adData":{"adUrl":"https://"},"landingPageData":{"url":"https://shop.example.com"}}`,
			wantStatus:  fiber.StatusBadRequest,
		},
		{
			name:        "image url not a url",
			contentType: fiber.MIMEApplicationJSON,
			body:        `{"adData":{"imageUrl":"not an image"},"landingPageData":{"url":"https://shop.example.com"}}`,
			wantStatus:  fiber.StatusBadRequest,
		},
		{
			name:        "upload too large",
			contentType: fiber.MIMEApplicationJSON,
			body:        `{"adData":{"imageUrl":"` + bigUpload + `"},"landingPageData":{"url":"https://shop.example.com"}}`,
			wantStatus:  fiber.StatusRequestEntityTooLarge,
		},
	}

	app := newApp(Config{MaxUploadBytes: 1024})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader(tt.body))
			req.Header.Set(fiber.HeaderContentType, tt.contentType)
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantStatus != fiber.StatusOK {
				var body map[string]string
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, CodeInvalidRequest, body["errorCode"])
			}
		})
	}
}

func TestMiddleware_SmallUploadAccepted(t *testing.T) {
	upload := utils.EncodeDataURL("image/png", make([]byte, 100))
	body := `{"adData":{"imageUrl":"` + upload + `"},"landingPageData":{"url":"https://shop.example.com"}}`

	req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := newApp(Config{MaxUploadBytes: 1024}).Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestIsValidURL(t *testing.T) {
	assert.True(t, isValidURL("https://example.com/path?q=1"))
	assert.True(t, isValidURL("http://localhost:8080"))
	assert.False(t, isValidURL("javascript:alert(1)"))
	assert.False(t, isValidURL("example.com"))
	assert.False(t, isValidURL("://bad"))
}
