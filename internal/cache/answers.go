package cache

import (
	"context"
	"log/slog"
	"time"
)

// AnswerStore maps fingerprints to previously computed answer text
type AnswerStore struct {
	store  Store
	logger *slog.Logger
}

// NewAnswerStore creates an answer store over store
func NewAnswerStore(store Store, logger *slog.Logger) *AnswerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerStore{store: store, logger: logger}
}

// Get returns the cached answer for fp. It does not refresh the TTL.
func (a *AnswerStore) Get(ctx context.Context, fp Fingerprint) Result[string] {
	res := a.store.Get(ctx, fp.AnswerKey())
	if res.Status == StatusUnavailable {
		a.logger.Warn("answer store read failed", "fingerprint", fp.Short(), "error", res.Err)
	}
	return res
}

// Put stores answer for fp with expiry now+ttl, overwriting any prior value.
// A failed write is logged and dropped.
func (a *AnswerStore) Put(ctx context.Context, fp Fingerprint, answer string, ttl time.Duration) Result[struct{}] {
	res := a.store.SetEX(ctx, fp.AnswerKey(), answer, ttl)
	if res.Status == StatusUnavailable {
		a.logger.Warn("answer store write dropped", "fingerprint", fp.Short(), "error", res.Err)
	}
	return res
}
