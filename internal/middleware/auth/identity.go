// Package auth reads the caller identity asserted by the upstream identity
// proxy.
package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	CodeUnauthorized = "UNAUTHORIZED"

	localsEmail = "auth.email"
)

type Config struct {
	// Header carries the verified account email. It must be set by a proxy
	// that strips any client-supplied value. Empty disables identity.
	Header string
}

// Identity copies the verified email from cfg.Header into the request
// locals. Requests without the header stay anonymous.
func Identity(cfg Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Header == "" {
			return c.Next()
		}
		if email := strings.TrimSpace(c.Get(cfg.Header)); email != "" {
			c.Locals(localsEmail, email)
		}
		return c.Next()
	}
}

// Email returns the verified caller email, or "" for anonymous requests.
func Email(c *fiber.Ctx) string {
	email, _ := c.Locals(localsEmail).(string)
	return email
}
