//go:build docker

package cli

import (
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
)

func TestCreateFiberConfigDockerReadsForwardedFor(t *testing.T) {
	config := createFiberConfig("Test App")

	// Containers run behind a reverse proxy
	assert.Equal(t, fiber.HeaderXForwardedFor, config.ProxyHeader)
}
