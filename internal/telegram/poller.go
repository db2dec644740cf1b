package telegram

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/models"
)

// UpdateSource yields updates; *Client is the production implementation
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]models.TelegramUpdate, error)
}

// Handler processes a single update
type Handler interface {
	HandleUpdate(ctx context.Context, update *models.TelegramUpdate)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, update *models.TelegramUpdate)

// HandleUpdate implements Handler
func (f HandlerFunc) HandleUpdate(ctx context.Context, update *models.TelegramUpdate) {
	f(ctx, update)
}

// PollerConfig tunes the polling loop
type PollerConfig struct {
	MaxConcurrent  int64
	PollTimeout    int           // seconds, passed to getUpdates
	RetryDelay     time.Duration // pause after a failed getUpdates
	HandlerTimeout time.Duration // budget per update, independent of shutdown
}

// Poller runs the getUpdates loop and dispatches each update to its own
// goroutine, bounded by a weighted semaphore.
type Poller struct {
	source  UpdateSource
	handler Handler
	cfg     PollerConfig
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	logger  *slog.Logger

	mu     sync.Mutex
	offset int64
}

// NewPoller creates a poller; zero config fields get defaults
func NewPoller(source UpdateSource, handler Handler, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		source:  source,
		handler: handler,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:  logger.With("component", "poller"),
	}
}

// Offset returns the next update ID that will be requested
func (p *Poller) Offset() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

// Run polls until ctx is cancelled, then waits for in-flight handlers
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("📡 Polling loop started", "max_concurrent", p.cfg.MaxConcurrent)
	defer func() {
		p.wg.Wait()
		p.logger.Info("📡 Poller stopped", "offset", p.Offset())
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := p.source.GetUpdates(ctx, p.Offset(), p.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("⚠️  Error getting updates", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.cfg.RetryDelay):
			}
			continue
		}

		for i := range updates {
			update := updates[i]
			p.advance(update.UpdateID)

			if err := p.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			p.wg.Add(1)
			go p.dispatch(ctx, &update)
		}
	}
}

// advance acknowledges updateID so getUpdates does not return it again
func (p *Poller) advance(updateID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if updateID >= p.offset {
		p.offset = updateID + 1
	}
}

func (p *Poller) dispatch(parent context.Context, update *models.TelegramUpdate) {
	defer p.wg.Done()
	defer p.sem.Release(1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("❌ Handler panicked", "update_id", update.UpdateID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	// Shutdown stops polling but lets accepted updates finish
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.cfg.HandlerTimeout)
	defer cancel()

	p.handler.HandleUpdate(ctx, update)
}
