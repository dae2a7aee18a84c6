package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/seuros/mfdash/internal/database"
	"github.com/seuros/mfdash/internal/reports"
)

// pingDatabase is nil-safe: without a postgres connection there is nothing to
// check.
var pingDatabase = func(ctx context.Context) error {
	if database.DB == nil {
		return nil
	}
	return database.Ping(ctx)
}

func handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "mfdash",
	})
}

// handleUp is the container health check.
func handleUp(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()
	if err := pingDatabase(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("database unavailable")
	}
	return c.SendStatus(fiber.StatusOK)
}

type reportInfo struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	ServerPaged bool   `json:"server_paged"`
}

// handleReports lists the catalog so the front-end can offer report tables.
func handleReports(c fiber.Ctx) error {
	names := reports.Names()
	out := make([]reportInfo, 0, len(names))
	for _, n := range names {
		r, _ := reports.Lookup(n)
		out = append(out, reportInfo{Name: r.Name, Title: r.Title, ServerPaged: r.ServerPaged})
	}
	return c.JSON(out)
}
