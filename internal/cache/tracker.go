package cache

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultUsageWindow is how long a usage record lives after creation
	DefaultUsageWindow = 7 * 24 * time.Hour

	// MaxQuerySample bounds the raw query stored with a usage record
	MaxQuerySample = 500
)

// UsageTracker counts observations per fingerprint
type UsageTracker struct {
	store  Store
	now    func() time.Time
	window time.Duration
	logger *slog.Logger
}

// NewUsageTracker creates a tracker over store. now may be nil.
func NewUsageTracker(store Store, now func() time.Time, logger *slog.Logger) *UsageTracker {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageTracker{
		store:  store,
		now:    now,
		window: DefaultUsageWindow,
		logger: logger,
	}
}

// RecordObservation increments the usage count of fp and returns the new
// count. A store failure is returned as StatusUnavailable and logged; it
// never escapes as an error.
func (t *UsageTracker) RecordObservation(ctx context.Context, fp Fingerprint, raw string) Result[int64] {
	res := t.store.ObserveUsage(ctx, fp.UsageKey(), Observation{
		At:     t.now(),
		Sample: truncateRunes(raw, MaxQuerySample),
		Window: t.window,
	})

	if res.Status == StatusUnavailable {
		t.logger.Warn("usage tracker unavailable", "fingerprint", fp.Short(), "error", res.Err)
	}
	return res
}

// Lookup returns the current usage record of fp
func (t *UsageTracker) Lookup(ctx context.Context, fp Fingerprint) Result[UsageRecord] {
	return t.store.Usage(ctx, fp.UsageKey())
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
