package middleware

import (
	"context"
	"errors"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/config"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/dto"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/services"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/tenant"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// JWTProtected verifies the access token. The token's app_id replaces
// whatever tenant the header named, so a token cannot be replayed against
// another app.
func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		SuccessHandler: func(c *fiber.Ctx) error {
			if claims, err := tenant.Claims(c); err == nil {
				if appID, ok := claims["app_id"].(string); ok && appID != "" {
					c.Locals("app_id", appID)
				}
			}
			return c.Next()
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Unauthorized: invalid or expired token",
			})
		},
	})
}

// ActiveCheck returns services.ErrAccountBlocked for blocked accounts.
type ActiveCheck func(ctx context.Context, appID string, userID uuid.UUID) error

// ActiveAccount rejects requests from blocked accounts whose access token
// has not expired yet. It runs after JWTProtected.
func ActiveAccount(check ActiveCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := tenant.GetUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}
		if err := check(c.UserContext(), tenant.GetAppID(c), userID); err != nil {
			switch {
			case errors.Is(err, services.ErrAccountBlocked):
				return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
					Error: true, Message: "Account is blocked",
				})
			case errors.Is(err, services.ErrNotFound):
				return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
					Error: true, Message: "Unauthorized",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
				Error: true, Message: "Internal server error",
			})
		}
		return c.Next()
	}
}
