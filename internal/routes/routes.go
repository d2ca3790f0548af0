package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/config"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type Handlers struct {
	Auth          *handlers.AuthHandler
	Health        *handlers.HealthHandler
	Moderation    *handlers.ModerationHandler
	Notifications *handlers.NotificationHandler
}

func Setup(app *fiber.App, cfg *config.Config, db *gorm.DB, h Handlers, active middleware.ActiveCheck) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", h.Health.Check)

	// Auth-specific rate limit: 10 req/min per IP (stricter)
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/refresh", h.Auth.Refresh)
	api.Post("/auth/logout", middleware.JWTProtected(cfg), h.Auth.Logout)

	protected := []fiber.Handler{middleware.JWTProtected(cfg), middleware.ActiveAccount(active)}

	api.Post("/reports", append(protected, h.Moderation.CreateReport)...)
	api.Get("/notifications", append(protected, h.Notifications.List)...)

	admin := api.Group("/admin/moderation", append(protected, middleware.ReviewerRequired(db))...)
	admin.Get("/reports", h.Moderation.ListReports)
	admin.Get("/reports/:id", h.Moderation.GetReport)
	admin.Post("/reports/:id/review", h.Moderation.MarkReviewing)
	admin.Post("/reports/:id/accept", h.Moderation.AcceptReport)
	admin.Post("/reports/:id/decline", h.Moderation.DeclineReport)
	admin.Patch("/reports/:id/priority", h.Moderation.SetPriority)
	admin.Post("/users/:id/block", h.Moderation.BlockUser)
	admin.Delete("/users/:id/block", h.Moderation.UnblockUser)
}
