package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// observeScript increments the usage counter and maintains the record's
// fields and expiry in one atomic round trip.
//
// KEYS[1] usage hash key
// ARGV[1] timestamp, ARGV[2] query sample, ARGV[3] window seconds
var observeScript = redis.NewScript(`
local function fresh()
	redis.call('DEL', KEYS[1])
	redis.call('HSET', KEYS[1], 'usage_count', 1, 'first_used', ARGV[1], 'last_used', ARGV[1], 'query', ARGV[2])
	redis.call('EXPIRE', KEYS[1], ARGV[3])
	return 1
end

local n = redis.pcall('HINCRBY', KEYS[1], 'usage_count', 1)
if type(n) == 'table' and n.err then
	return fresh()
end
if n <= 1 or redis.call('HEXISTS', KEYS[1], 'first_used') == 0 then
	return fresh()
end

redis.call('HSET', KEYS[1], 'last_used', ARGV[1])
if redis.call('TTL', KEYS[1]) < 0 then
	redis.call('EXPIRE', KEYS[1], ARGV[3])
end
return n
`)

// RedisOptions describes how to reach Redis. URL wins over the discrete
// fields when set.
type RedisOptions struct {
	URL      string
	Host     string
	Port     int
	DB       int
	Password string

	DialTimeout time.Duration
	OpTimeout   time.Duration
}

// Addr returns host:port
func (o RedisOptions) Addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// RedisStore implements Store on top of go-redis
type RedisStore struct {
	client    *redis.Client
	opTimeout time.Duration
	logger    *slog.Logger
}

// Dial connects to Redis and verifies the connection with PING.
// The caller owns the returned store and must Close it.
func Dial(ctx context.Context, opts RedisOptions, logger *slog.Logger) (*RedisStore, error) {
	var ropts *redis.Options
	if opts.URL != "" {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		ropts = parsed
	} else {
		ropts = &redis.Options{
			Addr: opts.Addr(),
			DB:   opts.DB,
		}
		if opts.Password != "" {
			ropts.Password = opts.Password
		}
	}

	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 2 * time.Second
	}

	// Configure connection pool
	ropts.PoolSize = 10
	ropts.MinIdleConns = 2
	ropts.MaxRetries = 1
	ropts.DialTimeout = opts.DialTimeout
	ropts.ReadTimeout = opts.OpTimeout
	ropts.WriteTimeout = opts.OpTimeout

	client := redis.NewClient(ropts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStore(client, opts.OpTimeout, logger), nil
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, opTimeout time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	return &RedisStore{
		client:    client,
		opTimeout: opTimeout,
		logger:    logger.With("component", "redis_store"),
	}
}

// Get implements Store
func (s *RedisStore) Get(ctx context.Context, key string) Result[string] {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return NotFound[string]()
	}
	if err != nil {
		return Unavailable[string](fmt.Errorf("GET %s: %w", key, err))
	}
	return OK(val)
}

// SetEX implements Store
func (s *RedisStore) SetEX(ctx context.Context, key, value string, ttl time.Duration) Result[struct{}] {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return Unavailable[struct{}](fmt.Errorf("SET %s: %w", key, err))
	}
	return OK(struct{}{})
}

// ObserveUsage implements Store
func (s *RedisStore) ObserveUsage(ctx context.Context, key string, obs Observation) Result[int64] {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	window := int64(obs.Window / time.Second)
	if window < 1 {
		window = 1
	}

	n, err := observeScript.Run(ctx, s.client, []string{key},
		formatTimestamp(obs.At), obs.Sample, strconv.FormatInt(window, 10)).Int64()
	if err != nil {
		return Unavailable[int64](fmt.Errorf("observe %s: %w", key, err))
	}
	return OK(n)
}

// Usage implements Store
func (s *RedisStore) Usage(ctx context.Context, key string) Result[UsageRecord] {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Unavailable[UsageRecord](fmt.Errorf("HGETALL %s: %w", key, err))
	}

	rec, ok := decodeUsage(fields)
	if !ok {
		if len(fields) > 0 {
			s.logger.Warn("corrupt usage record, treating as unseen", "key", key)
		}
		return NotFound[UsageRecord]()
	}
	return OK(rec)
}

// Ping checks if Redis is healthy
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}
