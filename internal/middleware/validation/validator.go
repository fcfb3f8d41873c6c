package validation

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adalign/backend/pkg/logger"
	"github.com/adalign/backend/pkg/utils"
)

const CodeInvalidRequest = "INVALID_REQUEST"

type Config struct {
	// MaxUploadBytes bounds the decoded size of an uploaded ad image.
	MaxUploadBytes      int
	AllowedContentTypes []string
}

// evaluateBody holds only the fields this middleware checks.
type evaluateBody struct {
	AdData struct {
		ImageURL string `json:"imageUrl"`
		AdURL    string `json:"adUrl"`
	} `json:"adData"`
	LandingPageData struct {
		URL string `json:"url"`
	} `json:"landingPageData"`
}

// Middleware rejects malformed evaluation requests before they reach the
// handler. Missing fields are left to the handler, which reports them with
// their own error codes.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 10 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		if !allowedType(c.Get(fiber.HeaderContentType), cfg.AllowedContentTypes) {
			return reject(c, fiber.StatusUnsupportedMediaType, "Content-Type must be application/json")
		}

		var body evaluateBody
		if err := c.BodyParser(&body); err != nil {
			return reject(c, fiber.StatusBadRequest, "Invalid JSON format")
		}

		if u := strings.TrimSpace(body.LandingPageData.URL); u != "" && !isValidURL(u) {
			return reject(c, fiber.StatusBadRequest, "landingPageData.url must be an http or https URL")
		}

		if u := strings.TrimSpace(body.AdData.AdURL); u != "" && !isValidURL(u) {
			return reject(c, fiber.StatusBadRequest, "adData.adUrl must be an http or https URL")
		}

		if img := strings.TrimSpace(body.AdData.ImageURL); img != "" {
			switch {
			case utils.IsDataURL(img):
				if size := utils.DataURLSize(img); size > cfg.MaxUploadBytes {
					logger.Warn("Upload too large",
						zap.String("ip_hash", utils.HashIdentity(c.IP())),
						zap.Int("bytes", size),
					)
					return reject(c, fiber.StatusRequestEntityTooLarge, "Uploaded image exceeds maximum size")
				}
			case !isValidURL(img):
				return reject(c, fiber.StatusBadRequest, "adData.imageUrl must be a data URL or an http or https URL")
			}
		}

		return c.Next()
	}
}

func reject(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":     msg,
		"errorCode": CodeInvalidRequest,
	})
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	if u.Host == "" {
		return false
	}

	return true
}
