package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/cache"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/logging"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/models"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/services"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/telegram"
)

const welcomeText = `Привет! Я бот для анализа видео-статистики.

Я умею отвечать только на количественные вопросы о видео в базе данных и отвечаю числом.

Примеры подходящих запросов:
• Сколько всего видео?
• Общее количество просмотров
• Среднее число лайков
• Сумма комментариев
• Максимум жалоб

Примеры неподходящих запросов (на них я не отвечаю):
• Какое видео самое популярное?
• Кто загрузил больше всего видео?
• Покажи последние 5 видео
• Топ 10 видео по просмотрам

Я не отвечаю на вопросы со словами «какой», «какие», «кто», «что», «где», «почему», «покажи», «топ», «список» и т.д.`

const (
	msgRateLimited    = "⏳ Слишком много запросов. Подождите немного и попробуйте снова."
	msgAdminOnly      = "⛔ Команда доступна только администраторам."
	msgCacheDisabled  = "Кеш отключён"
	msgUnknownCommand = "Неизвестная команда. Отправьте /help, чтобы увидеть примеры вопросов."
	msgCacheUsage     = "Использование: /cache <вопрос>"
)

// typingInterval keeps the indicator alive; Telegram drops it after ~5s
const typingInterval = 4 * time.Second

// Messenger sends replies to a chat
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

// Answerer turns a question into a reply
type Answerer interface {
	Answer(ctx context.Context, question string, beforeCompute func()) services.Reply
}

// StatsSource reports dataset sizes for /stats
type StatsSource interface {
	Stats(ctx context.Context) (models.DatabaseStats, error)
}

// CacheInspector reports a question's cache state for /cache
type CacheInspector interface {
	Inspect(ctx context.Context, raw string) cache.Inspection
}

// BotHandlerDeps groups the collaborators of BotHandler
type BotHandlerDeps struct {
	Messenger Messenger
	Answers   Answerer
	Stats     StatsSource
	Cache     CacheInspector
	Limiter   *services.ChatRateLimiter
	Metrics   *services.Metrics
	IsAdmin   func(userID int64) bool
}

// BotHandler routes Telegram updates to commands or the answer pipeline
type BotHandler struct {
	deps BotHandlerDeps
}

// NewBotHandler creates a handler. Nil Limiter disables rate limiting;
// nil IsAdmin treats nobody as admin.
func NewBotHandler(deps BotHandlerDeps) *BotHandler {
	if deps.IsAdmin == nil {
		deps.IsAdmin = func(int64) bool { return false }
	}
	return &BotHandler{deps: deps}
}

// HandleUpdate implements telegram.Handler
func (h *BotHandler) HandleUpdate(ctx context.Context, update *models.TelegramUpdate) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	var userID int64
	if msg.From != nil {
		if msg.From.IsBot {
			return
		}
		userID = msg.From.ID
	}
	chatID := msg.Chat.ID
	log := logging.WithUpdate(uuid.NewString(), update.UpdateID, chatID, userID)

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		h.deps.Metrics.RecordMessage(services.MessageUnsupported)
		log.Debug("ignoring non-text message")
		return
	}

	if h.deps.Limiter != nil && !h.deps.Limiter.Allow(chatID) {
		h.deps.Metrics.RecordMessage(services.MessageRateLimited)
		log.Warn("⏳ Rate limit exceeded")
		h.send(ctx, log, chatID, msgRateLimited)
		return
	}

	if msg.IsCommand() {
		h.deps.Metrics.RecordMessage(services.MessageCommand)
		h.handleCommand(ctx, log, chatID, userID, text)
		return
	}

	h.handleQuestion(ctx, log, chatID, text)
}

func (h *BotHandler) handleQuestion(ctx context.Context, log *slog.Logger, chatID int64, text string) {
	log.Info("📨 Question received", "text", truncate(text, 80))
	start := time.Now()

	stopTyping := func() {}
	beforeCompute := func() {
		typingCtx, cancel := context.WithCancel(ctx)
		stopTyping = cancel
		go h.keepTyping(typingCtx, log, chatID)
	}

	reply := h.deps.Answers.Answer(ctx, text, beforeCompute)
	stopTyping()

	switch reply.Source {
	case services.SourceIgnored:
		return
	case services.SourceTooShort:
		h.deps.Metrics.RecordMessage(services.MessageTooShort)
	case services.SourceNonNumeric:
		h.deps.Metrics.RecordMessage(services.MessageNonNumeric)
	default:
		h.deps.Metrics.RecordMessage(services.MessageQuestion)
		h.deps.Metrics.RecordAnswer(reply.Source)
	}

	attrs := []any{"source", reply.Source, "duration", time.Since(start)}
	if reply.Err != nil {
		log.Error("❌ Failed to answer", append(attrs, "stage", services.StageOf(reply.Err), "error", reply.Err)...)
	} else {
		log.Info("✅ Answered", attrs...)
	}

	h.send(ctx, log, chatID, reply.Text)
}

func (h *BotHandler) handleCommand(ctx context.Context, log *slog.Logger, chatID, userID int64, text string) {
	name, args := parseCommand(text)
	log.Info("📨 Command received", "command", name)

	switch name {
	case "start", "help":
		h.send(ctx, log, chatID, welcomeText)

	case "stats":
		if !h.deps.IsAdmin(userID) {
			h.send(ctx, log, chatID, msgAdminOnly)
			return
		}
		h.send(ctx, log, chatID, h.statsText(ctx, log))

	case "cache":
		if !h.deps.IsAdmin(userID) {
			h.send(ctx, log, chatID, msgAdminOnly)
			return
		}
		if args == "" {
			h.send(ctx, log, chatID, msgCacheUsage)
			return
		}
		h.send(ctx, log, chatID, h.cacheText(ctx, args))

	default:
		h.send(ctx, log, chatID, msgUnknownCommand)
	}
}

func (h *BotHandler) statsText(ctx context.Context, log *slog.Logger) string {
	if h.deps.Stats == nil {
		return services.MsgGenericError
	}
	stats, err := h.deps.Stats.Stats(ctx)
	if err != nil {
		log.Error("❌ Failed to load stats", "error", err)
		return services.MsgGenericError
	}
	return fmt.Sprintf("📊 Статистика базы данных\n\nВидео: %d\nСнимков статистики: %d", stats.Videos, stats.Snapshots)
}

func (h *BotHandler) cacheText(ctx context.Context, question string) string {
	if h.deps.Cache == nil {
		return msgCacheDisabled
	}
	ins := h.deps.Cache.Inspect(ctx, question)
	if !ins.Enabled {
		return msgCacheDisabled
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ключ: %s\nСостояние: %s", ins.Fingerprint.Short(), ins.State)
	if ins.Usage != nil {
		fmt.Fprintf(&b, "\nЗапросов: %d\nПервый: %s\nПоследний: %s",
			ins.Usage.Count,
			ins.Usage.FirstUsed.Format(time.RFC3339),
			ins.Usage.LastUsed.Format(time.RFC3339))
	}
	if !ins.Available {
		b.WriteString("\nХранилище недоступно")
	}
	return b.String()
}

// keepTyping refreshes the typing indicator until ctx is cancelled
func (h *BotHandler) keepTyping(ctx context.Context, log *slog.Logger, chatID int64) {
	ticker := time.NewTicker(typingInterval)
	defer ticker.Stop()

	for {
		if err := h.deps.Messenger.SendChatAction(ctx, chatID, telegram.ActionTyping); err != nil {
			if ctx.Err() == nil {
				log.Warn("⚠️  Failed to send typing action", "error", err)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *BotHandler) send(ctx context.Context, log *slog.Logger, chatID int64, text string) {
	if text == "" {
		return
	}
	if err := h.deps.Messenger.SendMessage(ctx, chatID, text); err != nil {
		log.Error("❌ Failed to send message", "error", err)
	}
}

// parseCommand splits "/cmd@bot args" into "cmd" and "args"
func parseCommand(text string) (name, args string) {
	text = strings.TrimPrefix(text, "/")
	name, args, _ = strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), strings.TrimSpace(args)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
