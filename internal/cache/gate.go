package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/logging"
)

// Recorder receives cache events. It decouples the gate from the metrics
// package; a nil Recorder is allowed.
type Recorder interface {
	RecordCacheLookup(result string)
	RecordCacheObservation(state string)
	RecordCachePromotion()
	RecordStoreUnavailable(op string)
}

// Lookup results passed to Recorder.RecordCacheLookup
const (
	LookupHit         = "hit"
	LookupMiss        = "miss"
	LookupUnavailable = "unavailable"
	LookupDisabled    = "disabled"
)

// GateConfig holds the promotion policy settings
type GateConfig struct {
	Enabled   bool
	TTL       time.Duration
	Threshold int64
}

// Option customizes a Gate
type Option func(*Gate)

// WithClock injects the clock used for usage timestamps
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLogger sets the gate's logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(g *Gate) { g.recorder = r }
}

// Gate decides whether a query is served from the cache and whether a
// freshly computed answer is promoted into it.
type Gate struct {
	enabled  bool
	store    Store
	answers  *AnswerStore
	tracker  *UsageTracker
	policy   Policy
	ttl      time.Duration
	now      func() time.Time
	recorder Recorder
	logger   *slog.Logger
}

// NewGate builds a gate over store. A nil store or cfg.Enabled=false
// yields a disabled gate.
func NewGate(store Store, cfg GateConfig, opts ...Option) *Gate {
	g := &Gate{
		enabled: cfg.Enabled && store != nil,
		store:   store,
		policy:  NewPolicy(cfg.Threshold),
		ttl:     cfg.TTL,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "cache_gate")

	if g.enabled {
		g.answers = NewAnswerStore(store, g.logger)
		g.tracker = NewUsageTracker(store, g.now, g.logger)
	}
	return g
}

// Disabled returns a gate that never serves and never stores
func Disabled() *Gate {
	return NewGate(nil, GateConfig{})
}

// Enabled reports whether the cache layer is active
func (g *Gate) Enabled() bool {
	return g.enabled
}

// TryServe returns the cached answer for raw, if any. It does not count
// as a usage observation.
func (g *Gate) TryServe(ctx context.Context, raw string) (string, bool) {
	if !g.enabled {
		g.recordLookup(LookupDisabled)
		return "", false
	}

	fp := FingerprintOf(raw)
	res := g.answers.Get(ctx, fp)

	switch {
	case res.Status == StatusOK && res.Value != "":
		g.recordLookup(LookupHit)
		g.logger.Debug("cache hit", "fingerprint", fp.Short())
		return res.Value, true
	case res.Status == StatusUnavailable:
		g.recordLookup(LookupUnavailable)
		g.recordUnavailable("get")
	default:
		g.recordLookup(LookupMiss)
	}
	return "", false
}

// MaybeCache records one observation of raw and stores answer once the
// usage count reaches the threshold. Already-cached queries are left
// untouched and not counted. Returns the fingerprint's resulting state.
func (g *Gate) MaybeCache(ctx context.Context, raw, answer string) State {
	if !g.enabled || answer == "" {
		return StateUnseen
	}

	fp := FingerprintOf(raw)
	log := logging.WithFingerprint(g.logger, fp.Short())

	existing := g.answers.Get(ctx, fp)
	switch existing.Status {
	case StatusOK:
		return StateCached
	case StatusUnavailable:
		g.recordUnavailable("get")
		return StateUnseen
	}

	obs := g.tracker.RecordObservation(ctx, fp, raw)
	if !obs.IsOK() {
		g.recordUnavailable("observe")
		return StateUnseen
	}

	from := StateUnseen
	if obs.Value > 1 {
		from = StateTracked
	}
	to := g.policy.Transition(from, obs.Value)

	if !Promotes(from, to) {
		g.recordObservation(to)
		log.Debug("query observed", "usage_count", obs.Value, "threshold", g.policy.Threshold)
		return to
	}

	if put := g.answers.Put(ctx, fp, answer, g.ttl); !put.IsOK() {
		g.recordUnavailable("put")
		return StateTracked
	}

	g.recordObservation(to)
	if g.recorder != nil {
		g.recorder.RecordCachePromotion()
	}
	log.Info("query promoted to cache", "usage_count", obs.Value, "ttl", g.ttl)
	return StateCached
}

// Inspection describes a fingerprint's cache position
type Inspection struct {
	Fingerprint Fingerprint
	State       State
	Usage       *UsageRecord
	Enabled     bool
	Available   bool
}

// Inspect reports where raw sits in the cache lifecycle without mutating
// anything.
func (g *Gate) Inspect(ctx context.Context, raw string) Inspection {
	fp := FingerprintOf(raw)
	out := Inspection{Fingerprint: fp, Enabled: g.enabled}
	if !g.enabled {
		return out
	}

	answer := g.answers.Get(ctx, fp)
	usage := g.tracker.Lookup(ctx, fp)
	out.Available = answer.Status != StatusUnavailable && usage.Status != StatusUnavailable

	if usage.IsOK() {
		rec := usage.Value
		out.Usage = &rec
		out.State = StateTracked
	}
	if answer.IsOK() {
		out.State = StateCached
	}
	return out
}

// Health returns "disabled", "ok" or "unavailable"
func (g *Gate) Health(ctx context.Context) string {
	if !g.enabled {
		return LookupDisabled
	}
	if err := g.store.Ping(ctx); err != nil {
		return LookupUnavailable
	}
	return "ok"
}

func (g *Gate) recordLookup(result string) {
	if g.recorder != nil {
		g.recorder.RecordCacheLookup(result)
	}
}

func (g *Gate) recordObservation(s State) {
	if g.recorder != nil {
		g.recorder.RecordCacheObservation(s.String())
	}
}

func (g *Gate) recordUnavailable(op string) {
	if g.recorder != nil {
		g.recorder.RecordStoreUnavailable(op)
	}
}
