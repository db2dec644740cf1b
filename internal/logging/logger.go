package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production it uses JSON output for log aggregation, otherwise the
// human-readable text handler. level overrides the environment default
// when set to debug, info, warn or error.
func Init(env, level string) {
	production := strings.ToLower(env) == "production"

	opts := &slog.HandlerOptions{Level: parseLevel(level, production)}

	var handler slog.Handler
	if production {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string, production bool) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if production {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// WithUpdate returns a logger with Telegram update context fields attached.
// Use this for all logging while handling one incoming message.
func WithUpdate(requestID string, updateID, chatID, userID int64) *slog.Logger {
	return slog.With(
		"request_id", requestID,
		"update_id", updateID,
		"chat_id", chatID,
		"user_id", userID,
	)
}

// WithFingerprint scopes a logger to a single query fingerprint.
func WithFingerprint(logger *slog.Logger, fingerprint string) *slog.Logger {
	return logger.With("fingerprint", fingerprint)
}
