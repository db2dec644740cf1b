package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Telegram
	BotToken       string
	AdminIDs       []int64
	TelegramAPIURL string

	// Analytics database
	DatabaseURL  string // postgres://..., mysql://... or sqlite://path
	QueryTimeout time.Duration

	// YandexGPT
	YandexAPIKey   string
	YandexFolderID string
	YandexGPTURL   string
	YandexGPTModel string
	LLMTimeout     time.Duration
	LLMMaxRetries  int
	LLMRatePerSec  float64

	// Answer cache
	EnableCache    bool
	CacheBackend   string // "redis" or "memory"
	CacheTTL       time.Duration
	MinCacheLength int64
	RedisURL       string
	RedisHost      string
	RedisPort      int
	RedisDB        int
	RedisPassword  string

	// Message handling
	MinQueryLength        int
	RateLimitPerMinute    int
	MaxConcurrentHandlers int

	// Ops
	HTTPPort    string
	PromptFile  string
	ProbeCron   string
	Environment string
	LogLevel    string
}

const (
	defaultYandexGPTURL = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"
	defaultTelegramURL  = "https://api.telegram.org"
)

// Load loads configuration from environment variables with defaults
func Load() *Config {
	cacheTTL := getIntEnv("CACHE_TTL", getIntEnv("REDIS_CACHE_TTL", 3600))

	return &Config{
		BotToken:       getEnv("BOT_TOKEN", ""),
		AdminIDs:       parseIDList(getEnv("ADMIN_ID", "")),
		TelegramAPIURL: strings.TrimRight(getEnv("TELEGRAM_API_URL", defaultTelegramURL), "/"),

		DatabaseURL:  databaseURL(),
		QueryTimeout: time.Duration(getIntEnv("QUERY_TIMEOUT_SECONDS", 15)) * time.Second,

		YandexAPIKey:   getEnv("YANDEX_API_KEY", ""),
		YandexFolderID: getEnv("YANDEX_FOLDER_ID", ""),
		YandexGPTURL:   getEnv("YANDEX_GPT_URL", defaultYandexGPTURL),
		YandexGPTModel: getEnv("YANDEX_GPT_MODEL", "yandexgpt-lite"),
		LLMTimeout:     time.Duration(getIntEnv("LLM_TIMEOUT_SECONDS", 30)) * time.Second,
		LLMMaxRetries:  getIntEnv("LLM_MAX_RETRIES", 2),
		LLMRatePerSec:  getFloatEnv("LLM_RATE_PER_SECOND", 5),

		EnableCache:    getBoolEnv("ENABLE_CACHE", true),
		CacheBackend:   strings.ToLower(getEnv("CACHE_BACKEND", "redis")),
		CacheTTL:       time.Duration(cacheTTL) * time.Second,
		MinCacheLength: int64(getIntEnv("MIN_CACHE_LENGTH", 3)),
		RedisURL:       getEnv("REDIS_URL", ""),
		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getIntEnv("REDIS_PORT", 6379),
		RedisDB:        getIntEnv("REDIS_DB", 0),
		RedisPassword:  strings.TrimSpace(getEnv("REDIS_PASSWORD", "")),

		MinQueryLength:        getIntEnv("MIN_QUERY_LENGTH", 10),
		RateLimitPerMinute:    getIntEnv("RATE_LIMIT_PER_MINUTE", 20),
		MaxConcurrentHandlers: getIntEnv("MAX_CONCURRENT_HANDLERS", 32),

		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		PromptFile:  getEnv("PROMPT_FILE", ""),
		ProbeCron:   getEnv("PROBE_CRON", "*/1 * * * *"),
		Environment: strings.ToLower(getEnv("ENVIRONMENT", "development")),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "")),
	}
}

// Validate reports every configuration problem at once
func (c *Config) Validate() error {
	var errs []string

	if c.BotToken == "" {
		errs = append(errs, "BOT_TOKEN is required")
	}
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL or DB_HOST/DB_NAME/DB_USER is required")
	}
	if c.YandexAPIKey == "" || c.YandexFolderID == "" {
		errs = append(errs, "YANDEX_API_KEY and YANDEX_FOLDER_ID are required")
	}
	if c.MinCacheLength < 1 {
		errs = append(errs, "MIN_CACHE_LENGTH must be at least 1")
	}
	if c.EnableCache && c.CacheTTL <= 0 {
		errs = append(errs, "CACHE_TTL must be positive when caching is enabled")
	}
	if c.CacheBackend != "redis" && c.CacheBackend != "memory" {
		errs = append(errs, fmt.Sprintf("invalid CACHE_BACKEND: %s (must be redis or memory)", c.CacheBackend))
	}
	if c.RedisPort < 1 || c.RedisPort > 65535 {
		errs = append(errs, "REDIS_PORT must be between 1 and 65535")
	}
	if c.MinQueryLength < 0 {
		errs = append(errs, "MIN_QUERY_LENGTH must not be negative")
	}
	if c.MaxConcurrentHandlers < 1 {
		errs = append(errs, "MAX_CONCURRENT_HANDLERS must be positive")
	}
	if c.LLMRatePerSec <= 0 {
		errs = append(errs, "LLM_RATE_PER_SECOND must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsAdmin reports whether the Telegram user ID is listed in ADMIN_ID
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsProduction returns true when ENVIRONMENT=production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// databaseURL returns DATABASE_URL, or builds a Postgres DSN from the
// discrete DB_* variables.
func databaseURL() string {
	if dsn := getEnv("DATABASE_URL", ""); dsn != "" {
		return dsn
	}

	host := getEnv("DB_HOST", "")
	name := getEnv("DB_NAME", "")
	if host == "" || name == "" {
		return ""
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("DB_USER", ""), getEnv("DB_PASSWORD", "")),
		Host:     fmt.Sprintf("%s:%s", host, getEnv("DB_PORT", "5432")),
		Path:     "/" + name,
		RawQuery: "sslmode=" + getEnv("DB_SSLMODE", "disable"),
	}
	return u.String()
}

// parseIDList parses "1, 2,3" and "[1,2]" into IDs, skipping junk
func parseIDList(value string) []int64 {
	value = strings.Trim(strings.TrimSpace(value), "[]")
	if value == "" {
		return nil
	}

	var ids []int64
	for _, part := range strings.Split(value, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
