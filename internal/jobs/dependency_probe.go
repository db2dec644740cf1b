package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// Dependency names reported by the probe
const (
	DependencyDatabase = "database"
	DependencyCache    = "cache"
	DependencyLLM      = "llm"
)

// Pinger checks a backing service
type Pinger interface {
	PingContext(ctx context.Context) error
}

// CacheHealth reports "disabled", "ok" or "unavailable"
type CacheHealth interface {
	Health(ctx context.Context) string
}

// CircuitState exposes the LLM client's breaker
type CircuitState interface {
	CircuitOpen() bool
}

// DependencyRecorder receives probe outcomes
type DependencyRecorder interface {
	SetDependencyUp(dependency string, up bool)
}

// DependencyProbe periodically checks the database, the answer cache and
// the LLM circuit breaker and publishes the results as gauges.
type DependencyProbe struct {
	db       Pinger
	cache    CacheHealth
	llm      CircuitState
	recorder DependencyRecorder
	timeout  time.Duration

	mu     sync.Mutex
	lastUp map[string]bool
}

// NewDependencyProbe creates the probe; cache and llm may be nil
func NewDependencyProbe(db Pinger, cache CacheHealth, llm CircuitState, recorder DependencyRecorder) *DependencyProbe {
	return &DependencyProbe{
		db:       db,
		cache:    cache,
		llm:      llm,
		recorder: recorder,
		timeout:  5 * time.Second,
		lastUp:   make(map[string]bool),
	}
}

// Run executes one probe round. Gate-disabled caches are not reported.
func (p *DependencyProbe) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.report(DependencyDatabase, p.db.PingContext(ctx) == nil)

	if p.cache != nil {
		if status := p.cache.Health(ctx); status != "disabled" {
			p.report(DependencyCache, status == "ok")
		}
	}

	if p.llm != nil {
		p.report(DependencyLLM, !p.llm.CircuitOpen())
	}
	return nil
}

// report publishes a result and logs transitions only
func (p *DependencyProbe) report(dependency string, up bool) {
	if p.recorder != nil {
		p.recorder.SetDependencyUp(dependency, up)
	}

	p.mu.Lock()
	prev, seen := p.lastUp[dependency]
	p.lastUp[dependency] = up
	p.mu.Unlock()

	if seen && prev == up {
		return
	}
	if up {
		log.Printf("✅ [PROBE] %s is up", dependency)
	} else {
		log.Printf("⚠️  [PROBE] %s is down", dependency)
	}
}
