package middleware

import (
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/dto"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/models"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ReviewerRequired lets admins and moderators through. The role is read
// from the database, not from the token, so a demotion takes effect on the
// next request.
func ReviewerRequired(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := tenant.GetUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		var user models.User
		err = db.WithContext(c.UserContext()).
			Scopes(tenant.ForTenant(tenant.GetAppID(c))).
			First(&user, "id = ?", userID).Error
		if err != nil || !user.IsReviewer() {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error: true, Message: "Reviewer access required",
			})
		}
		return c.Next()
	}
}
