//go:build docker

package cli

import (
	"time"

	"github.com/gofiber/fiber/v3"
)

// createFiberConfig returns Fiber configuration for Docker deployments, which
// sit behind a reverse proxy that sets X-Forwarded-For.
func createFiberConfig(appName string) fiber.Config {
	return fiber.Config{
		AppName:     appName,
		BodyLimit:   bodyLimit,
		ReadTimeout: 30 * time.Second,
		ProxyHeader: fiber.HeaderXForwardedFor,
	}
}
