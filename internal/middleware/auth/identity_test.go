package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whoami(t *testing.T, cfg Config, header string) string {
	t.Helper()
	app := fiber.New()
	app.Use(Identity(cfg))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(Email(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("X-Verified-Email", header)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		header string
		want   string
	}{
		{"verified", Config{Header: "X-Verified-Email"}, " pat@example.com ", "pat@example.com"},
		{"no header", Config{Header: "X-Verified-Email"}, "", ""},
		{"identity disabled", Config{}, "pat@example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, whoami(t, tt.cfg, tt.header))
		})
	}
}
