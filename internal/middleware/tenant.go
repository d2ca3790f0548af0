package middleware

import (
	"strings"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/dto"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

// Paths that don't require tenant identification.
var tenantSkipPaths = []string{
	"/api/health",
	"/metrics",
}

// TenantMiddleware extracts app_id from JWT claims or the X-App-ID header.
func TenantMiddleware(registry *tenant.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()

		for _, skip := range tenantSkipPaths {
			if strings.HasPrefix(path, skip) {
				return c.Next()
			}
		}

		// A verified token always wins over the header.
		if claims, err := tenant.Claims(c); err == nil {
			if appID, ok := claims["app_id"].(string); ok && appID != "" {
				c.Locals("app_id", appID)
				return c.Next()
			}
		}

		appID := c.Get("X-App-ID")
		if appID != "" {
			if !registry.Exists(appID) {
				return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
					Error:   true,
					Message: "Invalid X-App-ID: " + appID,
				})
			}
			c.Locals("app_id", appID)
			return c.Next()
		}

		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   true,
			Message: "X-App-ID header is required",
		})
	}
}
