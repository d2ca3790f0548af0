package handlers

import (
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/dto"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/services"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	items, total, err := h.notifications.List(c.UserContext(), tenant.GetAppID(c), userID, limit, offset)
	if err != nil {
		return respondError(c, err, "Failed to fetch notifications")
	}
	return c.JSON(dto.ListResponse{Data: items, Total: total, Limit: limit, Offset: offset})
}
