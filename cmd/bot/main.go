package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/cache"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/config"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/database"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/handlers"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/jobs"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/logging"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/preflight"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/services"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/telegram"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	cfg := config.Load()
	logging.Init(cfg.Environment, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ %v", err)
	}

	log.Println("🚀 Starting video statistics bot...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.QueryTimeout = cfg.QueryTimeout

	metrics := services.NewMetrics(prometheus.DefaultRegisterer)

	store := openCacheStore(ctx, cfg)
	if store != nil {
		defer store.Close()
	}
	gate := cache.NewGate(store, cache.GateConfig{
		Enabled:   cfg.EnableCache,
		TTL:       cfg.CacheTTL,
		Threshold: cfg.MinCacheLength,
	}, cache.WithRecorder(metrics), cache.WithLogger(slog.Default()))
	log.Printf("📦 Answer cache: %s (threshold %d, ttl %v)", gate.Health(ctx), cfg.MinCacheLength, cfg.CacheTTL)

	var cachePinger preflight.CachePinger
	if gate.Enabled() {
		cachePinger = store
	}
	if preflight.HasFailures(preflight.NewChecker(db, cachePinger).RunAll(ctx)) {
		log.Fatal("❌ Pre-flight checks failed")
	}

	prompts, err := services.NewPromptService(cfg.PromptFile, string(db.Dialect), slog.Default())
	if err != nil {
		log.Fatalf("❌ Failed to load prompt pack: %v", err)
	}

	generator := services.NewYandexGPTClient(services.YandexGPTConfig{
		URL:           cfg.YandexGPTURL,
		APIKey:        cfg.YandexAPIKey,
		FolderID:      cfg.YandexFolderID,
		Model:         cfg.YandexGPTModel,
		Timeout:       cfg.LLMTimeout,
		MaxRetries:    cfg.LLMMaxRetries,
		RatePerSecond: cfg.LLMRatePerSec,
	}, prompts, slog.Default())

	answers := services.NewAnswerService(gate, generator, db, services.NewQuestionClassifier(), metrics,
		services.AnswerServiceConfig{MinQueryLength: cfg.MinQueryLength}, slog.Default())

	bot := telegram.NewClient(cfg.TelegramAPIURL, cfg.BotToken, slog.Default())
	me, err := bot.GetMe(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to verify bot token: %v", err)
	}
	log.Printf("🤖 Authorized as @%s", me.Username)
	if err := bot.DeleteWebhook(ctx); err != nil {
		log.Printf("⚠️  Failed to delete webhook: %v", err)
	}

	botHandler := handlers.NewBotHandler(handlers.BotHandlerDeps{
		Messenger: bot,
		Answers:   answers,
		Stats:     db,
		Cache:     gate,
		Limiter:   services.NewChatRateLimiter(cfg.RateLimitPerMinute),
		Metrics:   metrics,
		IsAdmin:   cfg.IsAdmin,
	})
	poller := telegram.NewPoller(bot, botHandler, telegram.PollerConfig{
		MaxConcurrent: int64(cfg.MaxConcurrentHandlers),
	}, slog.Default())

	scheduler, err := jobs.NewJobScheduler()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	probe := jobs.NewDependencyProbe(db, gate, generator, metrics)
	if err := scheduler.Register("dependency_probe", cfg.ProbeCron, probe); err != nil {
		log.Fatalf("❌ %v", err)
	}
	scheduler.Start()
	scheduler.RunNow("dependency_probe")

	app := newHTTPServer(handlers.NewHealthHandler(db, gate))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return prompts.Watch(gctx) })
	g.Go(func() error {
		log.Printf("📡 Health check: http://localhost:%s/health", cfg.HTTPPort)
		return app.Listen(":" + cfg.HTTPPort)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("🛑 Shutting down...")

		if err := scheduler.Stop(); err != nil {
			log.Printf("⚠️  Error stopping scheduler: %v", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("❌ Bot stopped with error: %v", err)
		os.Exit(1)
	}
	log.Println("✅ Bot stopped")
}

// openCacheStore connects the configured backend. A failed Redis connection
// disables caching instead of stopping the bot.
func openCacheStore(ctx context.Context, cfg *config.Config) cache.Store {
	if !cfg.EnableCache {
		log.Println("⚠️  ENABLE_CACHE=false, answer cache disabled")
		return nil
	}

	if cfg.CacheBackend == "memory" {
		log.Println("📦 Using in-process answer cache")
		return cache.NewMemoryStore(nil)
	}

	store, err := cache.Dial(ctx, cache.RedisOptions{
		URL:      cfg.RedisURL,
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
	}, slog.Default())
	if err != nil {
		log.Printf("⚠️  Redis unavailable, continuing without cache: %v", err)
		return nil
	}
	return store
}

func newHTTPServer(health *handlers.HealthHandler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "video-stats-bot",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	app.Use(recover.New())

	prom := fiberprometheus.New("videobot")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)

	app.Get("/health", health.Handle)
	app.Get("/ready", health.Ready)
	return app
}
