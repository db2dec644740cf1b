package services

import (
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// ChatRateLimiter limits how many questions each chat may send per minute.
// Limiters of idle chats expire from memory.
type ChatRateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *cache.Cache
	mu       sync.Mutex
}

// NewChatRateLimiter creates a limiter allowing perMinute messages per chat.
// perMinute <= 0 disables limiting.
func NewChatRateLimiter(perMinute int) *ChatRateLimiter {
	if perMinute <= 0 {
		return &ChatRateLimiter{}
	}

	burst := perMinute / 4
	if burst < 1 {
		burst = 1
	}

	return &ChatRateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		limiters: cache.New(10*time.Minute, 5*time.Minute),
	}
}

// Allow reports whether chatID may send another message now
func (l *ChatRateLimiter) Allow(chatID int64) bool {
	if l.limiters == nil {
		return true
	}
	return l.limiterFor(chatID).Allow()
}

func (l *ChatRateLimiter) limiterFor(chatID int64) *rate.Limiter {
	key := strconv.FormatInt(chatID, 10)

	l.mu.Lock()
	defer l.mu.Unlock()

	var limiter *rate.Limiter
	if value, found := l.limiters.Get(key); found {
		limiter = value.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(l.limit, l.burst)
	}
	// Re-setting refreshes the idle expiry
	l.limiters.SetDefault(key, limiter)
	return limiter
}

// Tracked returns how many chats currently hold a limiter
func (l *ChatRateLimiter) Tracked() int {
	if l.limiters == nil {
		return 0
	}
	return l.limiters.ItemCount()
}
