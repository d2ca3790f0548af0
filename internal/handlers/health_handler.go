package handlers

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/database"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/dto"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	registry *tenant.Registry
	// realtime pings the cross-node broker; nil when sessions are local.
	realtime func(ctx context.Context) error
}

func NewHealthHandler(registry *tenant.Registry, realtime func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{registry: registry, realtime: realtime}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dbStatus := "ok"
	if err := database.Ping(); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	rtStatus := "local"
	if h.realtime != nil {
		rtStatus = "ok"
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := h.realtime(ctx); err != nil {
			rtStatus = "unhealthy: " + err.Error()
		}
	}

	return c.JSON(dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        dbStatus,
		Realtime:  rtStatus,
		AppCount:  len(h.registry.All()),
	})
}
