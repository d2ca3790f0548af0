package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/joho/godotenv"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/config"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/database"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/logging"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/realtime"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/routes"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/services"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/tenant"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}
	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	registry, err := tenant.LoadFromFile(cfg.AppsConfigPath)
	if err != nil {
		slog.Error("failed to load app registry", "path", cfg.AppsConfigPath, "error", err)
		os.Exit(1)
	}
	slog.Info("app registry loaded", "apps", len(registry.All()))

	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(database.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(logging.Stdout(), pgLogHandler)))

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cleanupDone)

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Realtime sessions: in-process, or relayed through Redis when several
	// nodes hold connections.
	bgCtx, stopBackground := context.WithCancel(context.Background())
	hub := realtime.NewHub()
	var sessions services.Sessions = hub
	var realtimePing func(ctx context.Context) error
	if cfg.RedisURL != "" {
		rdb, err := realtime.DialRedis(bgCtx, cfg.RedisURL)
		if err != nil {
			slog.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		broker := realtime.NewBroker(rdb, hub)
		go broker.Run(bgCtx)
		sessions = broker
		realtimePing = broker.Ping
		slog.Info("realtime broker started")
	}

	// Services
	mod := cfg.Moderation
	notifications := services.NewNotificationService(database.DB, sessions)
	enforcer := services.NewEnforcementCoordinator(database.DB, services.NewGormContentStore, notifications, mod)
	reportService := services.NewReportService(database.DB, services.NewGormContentStore, enforcer, notifications, registry, mod)
	reviewService := services.NewReviewService(database.DB, services.NewGormContentStore, enforcer, notifications, mod)
	authService := services.NewAuthService(database.DB, cfg)

	sweepDone := make(chan struct{})
	services.NewSweeper(database.DB, enforcer, mod).Start(sweepDone)

	// Websocket gateway
	wsServer := realtime.NewServer(hub,
		realtime.JWTAuthenticator([]byte(cfg.JWTSecret), enforcer.EnsureActive),
		originChecker(cfg.CORSOrigins),
	)
	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	rtServer := &http.Server{
		Addr:              ":" + cfg.RealtimePort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	app.Use(middleware.TenantMiddleware(registry))

	routes.Setup(app, cfg, database.DB, routes.Handlers{
		Auth:          handlers.NewAuthHandler(authService),
		Health:        handlers.NewHealthHandler(registry, realtimePing),
		Moderation:    handlers.NewModerationHandler(reportService, reviewService, enforcer),
		Notifications: handlers.NewNotificationHandler(notifications),
	}, enforcer.EnsureActive)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()
	go func() {
		slog.Info("realtime gateway starting", "port", cfg.RealtimePort)
		if err := rtServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("realtime gateway failed", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	close(cleanupDone)
	close(sweepDone)
	stopBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rtServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("realtime gateway shutdown error", "error", err)
	}
	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func originChecker(origins string) func(r *http.Request) bool {
	if origins == "" || origins == "*" {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]bool)
	for _, o := range strings.Split(origins, ",") {
		allowed[strings.TrimSpace(o)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
