package middleware

import (
	"slices"

	"github.com/gofiber/fiber/v3"

	"github.com/seuros/mfdash/internal/config"
	"github.com/seuros/mfdash/internal/logging"
)

// TrustedOrigins rejects state-changing requests whose Origin header names a
// host outside trusted. Requests without an Origin header (curl, the CLI) and
// safe methods pass through.
func TrustedOrigins(trusted []string) fiber.Handler {
	return func(c fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		origin := c.Get(fiber.HeaderOrigin)
		if origin == "" {
			return c.Next()
		}
		host, err := config.NormalizeOrigin(origin)
		if err != nil || !slices.Contains(trusted, host) {
			logging.L().Warn("rejected cross-origin request", "origin", origin, "path", c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Origin not allowed",
			})
		}
		return c.Next()
	}
}

// Version stamps every response with the running version.
func Version(version string) fiber.Handler {
	return func(c fiber.Ctx) error {
		c.Set("X-Mfdash-Version", version)
		return c.Next()
	}
}
