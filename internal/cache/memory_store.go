package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStoreClosed is returned by MemoryStore after Close
var ErrStoreClosed = errors.New("cache store closed")

type memEntry struct {
	value     string
	expiresAt time.Time
}

type memHash struct {
	fields    map[string]string
	expiresAt time.Time
}

// MemoryStore is a single-process Store with the same semantics as
// RedisStore. It backs CACHE_BACKEND=memory for local runs and the
// cache tests, where the clock is injected to simulate expiry.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	strings map[string]memEntry
	hashes  map[string]memHash
	closed  bool
}

// NewMemoryStore creates an empty store. now may be nil (time.Now).
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:     now,
		strings: make(map[string]memEntry),
		hashes:  make(map[string]memHash),
	}
}

// Get implements Store
func (m *MemoryStore) Get(_ context.Context, key string) Result[string] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Unavailable[string](ErrStoreClosed)
	}

	e, ok := m.strings[key]
	if !ok {
		return NotFound[string]()
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.strings, key)
		return NotFound[string]()
	}
	return OK(e.value)
}

// SetEX implements Store
func (m *MemoryStore) SetEX(_ context.Context, key, value string, ttl time.Duration) Result[struct{}] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Unavailable[struct{}](ErrStoreClosed)
	}

	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.strings[key] = e
	return OK(struct{}{})
}

// ObserveUsage implements Store
func (m *MemoryStore) ObserveUsage(_ context.Context, key string, obs Observation) Result[int64] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Unavailable[int64](ErrStoreClosed)
	}

	ts := formatTimestamp(obs.At)
	h, ok := m.liveHash(key)
	if ok {
		if rec, valid := decodeUsage(h.fields); valid {
			rec.Count++
			h.fields[fieldUsageCount] = formatCount(rec.Count)
			h.fields[fieldLastUsed] = ts
			if h.expiresAt.IsZero() {
				h.expiresAt = m.now().Add(obs.Window)
			}
			m.hashes[key] = h
			return OK(rec.Count)
		}
	}

	m.hashes[key] = memHash{
		fields: map[string]string{
			fieldUsageCount: "1",
			fieldFirstUsed:  ts,
			fieldLastUsed:   ts,
			fieldQuery:      obs.Sample,
		},
		expiresAt: m.now().Add(obs.Window),
	}
	return OK(int64(1))
}

// Usage implements Store
func (m *MemoryStore) Usage(_ context.Context, key string) Result[UsageRecord] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Unavailable[UsageRecord](ErrStoreClosed)
	}

	h, ok := m.liveHash(key)
	if !ok {
		return NotFound[UsageRecord]()
	}
	rec, valid := decodeUsage(h.fields)
	if !valid {
		return NotFound[UsageRecord]()
	}
	return OK(rec)
}

// PutRawHash overwrites a hash without validation. It exists so corrupt
// records can be reproduced.
func (m *MemoryStore) PutRawHash(key string, fields map[string]string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := memHash{fields: make(map[string]string, len(fields))}
	for k, v := range fields {
		h.fields[k] = v
	}
	if ttl > 0 {
		h.expiresAt = m.now().Add(ttl)
	}
	m.hashes[key] = h
}

// Ping implements Store
func (m *MemoryStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close implements Store
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// liveHash returns the hash at key unless it has expired (must hold lock)
func (m *MemoryStore) liveHash(key string) (memHash, bool) {
	h, ok := m.hashes[key]
	if !ok {
		return memHash{}, false
	}
	if !h.expiresAt.IsZero() && !m.now().Before(h.expiresAt) {
		delete(m.hashes, key)
		return memHash{}, false
	}
	return h, true
}
