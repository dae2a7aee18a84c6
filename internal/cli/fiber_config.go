//go:build !docker

package cli

import (
	"time"

	"github.com/gofiber/fiber/v3"
)

// createFiberConfig returns Fiber configuration for bare metal deployments.
// Sessions live in process memory, so the server always runs as one process.
func createFiberConfig(appName string) fiber.Config {
	return fiber.Config{
		AppName:     appName,
		BodyLimit:   bodyLimit,
		ReadTimeout: 30 * time.Second,
	}
}
