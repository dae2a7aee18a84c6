package handlers

import (
	"github.com/gofiber/fiber/v3"

	"github.com/seuros/mfdash/internal/logging"
	"github.com/seuros/mfdash/internal/prefs"
)

// prefKey validates :key. The stored API token is never exposed over HTTP.
func prefKey(c fiber.Ctx) (string, bool, error) {
	key := c.Params("key")
	if err := prefs.ValidateKey(key); err != nil {
		return "", false, errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if key == prefs.TokenKey {
		return "", false, errorJSON(c, fiber.StatusForbidden, "key is write-only")
	}
	return key, true, nil
}

func (a *API) getPref(c fiber.Ctx) error {
	key, ok, err := prefKey(c)
	if !ok {
		return err
	}
	value, found, err := a.deps.Prefs.Get(c.Context(), key)
	if err != nil {
		logging.L().Error("failed to read preference", "key", key, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to read preference")
	}
	if !found {
		return errorJSON(c, fiber.StatusNotFound, "preference not found")
	}
	return c.JSON(fiber.Map{"key": key, "value": value})
}

type putPrefRequest struct {
	Value *string `json:"value"`
}

func (a *API) putPref(c fiber.Ctx) error {
	key := c.Params("key")
	if err := prefs.ValidateKey(key); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	var req putPrefRequest
	if err := bindJSON(c, &req); err != nil || req.Value == nil {
		return errorJSON(c, fiber.StatusBadRequest, "value is required")
	}
	if err := a.deps.Prefs.Set(c.Context(), key, *req.Value); err != nil {
		logging.L().Error("failed to write preference", "key", key, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to write preference")
	}
	if key == prefs.TokenKey {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(fiber.Map{"key": key, "value": *req.Value})
}

func (a *API) deletePref(c fiber.Ctx) error {
	key := c.Params("key")
	if err := prefs.ValidateKey(key); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if err := a.deps.Prefs.Delete(c.Context(), key); err != nil {
		logging.L().Error("failed to delete preference", "key", key, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to delete preference")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
