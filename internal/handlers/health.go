package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger checks a backing service
type Pinger interface {
	PingContext(ctx context.Context) error
}

// CacheHealth reports "disabled", "ok" or "unavailable"
type CacheHealth interface {
	Health(ctx context.Context) string
}

// HealthHandler handles liveness and readiness requests
type HealthHandler struct {
	db      Pinger
	cache   CacheHealth
	started time.Time
	timeout time.Duration
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, cache CacheHealth) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, started: time.Now(), timeout: 2 * time.Second}
}

// Handle responds with process liveness
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Ready reports whether the bot can answer questions. The cache is
// informational only: an unavailable cache degrades, it does not fail.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	dbStatus := "ok"
	if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "unavailable"
	}

	cacheStatus := "disabled"
	if h.cache != nil {
		cacheStatus = h.cache.Health(ctx)
	}

	status, code := "ready", fiber.StatusOK
	if dbStatus != "ok" {
		status, code = "not_ready", fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"database":  dbStatus,
		"cache":     cacheStatus,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
