package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"

	"forecast-cache/internal/agent"
	httpapi "forecast-cache/internal/api/http"
	"forecast-cache/internal/config"
	"forecast-cache/internal/forecast"
	"forecast-cache/internal/scheduler"
	"forecast-cache/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Process-scoped Postgres pool, closed on shutdown.
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()

	forecastStore := store.NewPostgresStore(pool, cfg.ForecastTTL)

	// Verify connectivity but start anyway; reads fail soft with 503 until
	// the store comes back.
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := forecastStore.Ping(pingCtx); err != nil {
		log.Printf("WARN: store unreachable at startup: %v", err)
	}
	cancelPing()

	// Fire-and-forget regeneration client.
	trigger := agent.NewClient(agent.Config{
		BaseURL:       cfg.AgentBaseURL,
		AppName:       cfg.AgentAppName,
		UserID:        cfg.AgentUserID,
		Timeout:       cfg.TriggerTimeout,
		MaxConcurrent: int64(cfg.TriggerMaxConcurrent),
	})

	// Core service orchestrating store, freshness and trigger.
	service := forecast.NewService(forecastStore, trigger, cfg.ForecastTTL)

	// Scheduler that periodically warms forecasts for configured cities.
	sched := scheduler.New(cfg.WarmupCities, cfg.WarmupInterval, service)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "forecast-cache",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "forecast-cache",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

	// Start server with graceful shutdown
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
