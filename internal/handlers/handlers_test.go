package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/cache"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/database"
)

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type fakeCacheHealth string

func (f fakeCacheHealth) Health(context.Context) string { return string(f) }

func getJSON(t *testing.T, app *fiber.App, path string) (int, map[string]interface{}) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}
	return resp.StatusCode, result
}

// TestHealthHandler tests the liveness endpoint
func TestHealthHandler(t *testing.T) {
	app := fiber.New()
	handler := NewHealthHandler(fakePinger{}, nil)
	app.Get("/health", handler.Handle)

	status, result := getJSON(t, app, "/health")
	if status != fiber.StatusOK {
		t.Errorf("Expected status 200, got %d", status)
	}
	if result["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", result["status"])
	}
	if result["timestamp"] == nil {
		t.Error("Expected 'timestamp' field in response")
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		cache      CacheHealth
		wantCode   int
		wantStatus string
		wantCache  string
	}{
		{"all ok", fakePinger{}, fakeCacheHealth("ok"), 200, "ready", "ok"},
		{"cache down still ready", fakePinger{}, fakeCacheHealth("unavailable"), 200, "ready", "unavailable"},
		{"no cache", fakePinger{}, nil, 200, "ready", "disabled"},
		{"database down", fakePinger{err: errors.New("refused")}, fakeCacheHealth("ok"), 503, "not_ready", "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			handler := NewHealthHandler(tt.db, tt.cache)
			app.Get("/ready", handler.Ready)

			status, result := getJSON(t, app, "/ready")
			if status != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, status)
			}
			if result["status"] != tt.wantStatus {
				t.Errorf("Expected status %s, got %v", tt.wantStatus, result["status"])
			}
			if result["cache"] != tt.wantCache {
				t.Errorf("Expected cache %s, got %v", tt.wantCache, result["cache"])
			}
		})
	}
}

// TestHealthHandler_ReadyWithRealStores wires the readiness probe to a
// sqlite database and an in-memory cache gate.
func TestHealthHandler_ReadyWithRealStores(t *testing.T) {
	db, err := database.New("sqlite://" + filepath.Join(t.TempDir(), "ready.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	gate := cache.NewGate(cache.NewMemoryStore(nil), cache.GateConfig{Enabled: true, TTL: time.Minute, Threshold: 3})

	app := fiber.New()
	app.Get("/ready", NewHealthHandler(db, gate).Ready)

	status, result := getJSON(t, app, "/ready")
	if status != fiber.StatusOK {
		t.Errorf("Expected status 200, got %d", status)
	}
	if result["database"] != "ok" || result["cache"] != "ok" {
		t.Errorf("Unexpected readiness %v", result)
	}
}
