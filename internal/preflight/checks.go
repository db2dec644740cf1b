package preflight

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/database"
)

// Check statuses
const (
	StatusPass    = "pass"
	StatusFail    = "fail"
	StatusWarning = "warning"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// CachePinger is the cache store as seen by the checker
type CachePinger interface {
	Ping(ctx context.Context) error
}

// Checker performs pre-flight checks before the bot starts polling
type Checker struct {
	db             *database.DB
	cache          CachePinger // nil when caching is disabled
	requiredEnvars []string
	timeout        time.Duration
}

// NewChecker creates a new preflight checker
func NewChecker(db *database.DB, cache CachePinger) *Checker {
	return &Checker{
		db:    db,
		cache: cache,
		requiredEnvars: []string{
			"BOT_TOKEN",
			"YANDEX_API_KEY",
			"YANDEX_FOLDER_ID",
		},
		timeout: 5 * time.Second,
	}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkDatabaseConnection(ctx),
		c.checkDatabaseSchema(ctx),
		c.checkEnvironmentVariables(),
		c.checkCache(ctx),
	}

	passed, failed, warnings := 0, 0, 0
	for _, result := range results {
		switch result.Status {
		case StatusPass:
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case StatusFail:
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case StatusWarning:
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == StatusFail {
			return true
		}
	}
	return false
}

// checkDatabaseConnection verifies database connectivity
func (c *Checker) checkDatabaseConnection(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return CheckResult{
			Name:    "Database Connection",
			Status:  StatusFail,
			Message: "Cannot connect to database",
			Error:   err,
		}
	}

	return CheckResult{
		Name:    "Database Connection",
		Status:  StatusPass,
		Message: fmt.Sprintf("Connected (%s)", c.db.Dialect),
	}
}

// checkDatabaseSchema verifies the statistics tables exist
func (c *Checker) checkDatabaseSchema(ctx context.Context) CheckResult {
	requiredTables := []string{database.TableVideos, database.TableSnapshots}

	for _, table := range requiredTables {
		exists, err := c.db.TableExists(ctx, table)
		if err != nil || !exists {
			return CheckResult{
				Name:    "Database Schema",
				Status:  StatusFail,
				Message: fmt.Sprintf("Required table '%s' not found (run the loader first)", table),
				Error:   err,
			}
		}
	}

	return CheckResult{
		Name:    "Database Schema",
		Status:  StatusPass,
		Message: fmt.Sprintf("All %d required tables exist", len(requiredTables)),
	}
}

// checkEnvironmentVariables verifies required environment variables are set
func (c *Checker) checkEnvironmentVariables() CheckResult {
	missing := []string{}

	for _, envar := range c.requiredEnvars {
		if os.Getenv(envar) == "" {
			missing = append(missing, envar)
		}
	}

	if len(missing) > 0 {
		return CheckResult{
			Name:    "Environment Variables",
			Status:  StatusFail,
			Message: fmt.Sprintf("Missing environment variables: %v", missing),
		}
	}

	if os.Getenv("ADMIN_ID") == "" {
		return CheckResult{
			Name:    "Environment Variables",
			Status:  StatusWarning,
			Message: "ADMIN_ID not set, admin commands are unavailable",
		}
	}

	return CheckResult{
		Name:    "Environment Variables",
		Status:  StatusPass,
		Message: "All environment variables configured",
	}
}

// checkCache pings the answer cache. The bot runs without it, so an
// unreachable store is only a warning.
func (c *Checker) checkCache(ctx context.Context) CheckResult {
	if c.cache == nil {
		return CheckResult{
			Name:    "Answer Cache",
			Status:  StatusWarning,
			Message: "Caching disabled, every question goes to the LLM",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.cache.Ping(ctx); err != nil {
		return CheckResult{
			Name:    "Answer Cache",
			Status:  StatusWarning,
			Message: "Cache store unreachable, continuing without cache",
			Error:   err,
		}
	}

	return CheckResult{
		Name:    "Answer Cache",
		Status:  StatusPass,
		Message: "Cache store reachable",
	}
}

// QuickCheck runs minimal checks for fast startup
func (c *Checker) QuickCheck(ctx context.Context) []CheckResult {
	log.Println("⚡ Running quick pre-flight checks...")

	results := []CheckResult{
		c.checkDatabaseConnection(ctx),
	}

	for _, result := range results {
		if result.Status == StatusPass {
			log.Printf("   ✅ %s", result.Name)
		} else if result.Status == StatusFail {
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
		}
	}

	return results
}
