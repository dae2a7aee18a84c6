// Package middleware holds the fiber middleware in front of the JSON API.
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// APIKey requires every request to carry key, either as
// "Authorization: Bearer <key>" or in X-API-Key. An empty key disables the
// check.
func APIKey(key string) fiber.Handler {
	if key == "" {
		return func(c fiber.Ctx) error { return c.Next() }
	}
	want := hashKey(key)
	return func(c fiber.Ctx) error {
		got := extractAPIKey(c)
		if got == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing API key",
			})
		}
		if subtle.ConstantTimeCompare([]byte(hashKey(got)), []byte(want)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}
		return c.Next()
	}
}

// extractAPIKey supports Authorization: Bearer <key> and X-API-Key: <key>.
func extractAPIKey(c fiber.Ctx) string {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return strings.TrimSpace(c.Get("X-API-Key"))
}

// hashKey compares digests so the comparison time does not depend on the
// key length.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
