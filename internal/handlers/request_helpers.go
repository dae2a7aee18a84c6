package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v3"

	"github.com/seuros/mfdash/internal/apiclient"
	"github.com/seuros/mfdash/internal/logging"
	"github.com/seuros/mfdash/internal/session"
)

// errorJSON writes the standard error envelope.
func errorJSON(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

// bindJSON decodes the body into dst. An empty body leaves dst untouched.
func bindJSON(c fiber.Ctx, dst any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.Bind().JSON(dst)
}

// upstreamError maps a data-fetch failure onto a response.
func upstreamError(c fiber.Ctx, err error) error {
	var apiErr *apiclient.APIError
	switch {
	case apiclient.IsUnauthorized(err):
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, context.DeadlineExceeded):
		logging.L().Warn("upstream timed out", "path", c.Path(), "error", err)
		return errorJSON(c, fiber.StatusGatewayTimeout, "Upstream request timed out")
	case errors.As(err, &apiErr):
		logging.L().Warn("upstream request failed", "path", c.Path(), "status", apiErr.Status, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":           apiErr.Message,
			"upstream_status": apiErr.Status,
		})
	default:
		logging.L().Warn("upstream request failed", "path", c.Path(), "error", err)
		return errorJSON(c, fiber.StatusBadGateway, "Upstream request failed")
	}
}

// notFound answers for an unknown or malformed session id.
func notFound(c fiber.Ctx, kind string) error {
	return errorJSON(c, fiber.StatusNotFound, kind+" session not found")
}

// deleteEntry removes :id from reg.
func deleteEntry[T any](c fiber.Ctx, reg *session.Registry[T], kind string) error {
	if !reg.Delete(c.Params("id")) {
		return notFound(c, kind)
	}
	return c.SendStatus(http.StatusNoContent)
}
