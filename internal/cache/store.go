package cache

import (
	"context"
	"strconv"
	"time"
)

// Usage record hash fields
const (
	fieldUsageCount = "usage_count"
	fieldFirstUsed  = "first_used"
	fieldLastUsed   = "last_used"
	fieldQuery      = "query"
)

const timestampLayout = time.RFC3339Nano

// Store is the shared key-value collaborator. All cache state lives behind
// it; every call is a network round trip in production. Implementations
// fold transport errors into StatusUnavailable instead of returning them.
type Store interface {
	// Get returns a string value. Reading never extends the key's TTL.
	Get(ctx context.Context, key string) Result[string]

	// SetEX stores a string value with expiry now+ttl, overwriting.
	SetEX(ctx context.Context, key, value string, ttl time.Duration) Result[struct{}]

	// ObserveUsage atomically increments the usage record at key and
	// returns the post-increment count. A missing, expired or corrupt
	// record is recreated with count 1 and expiry obs.At+obs.Window.
	ObserveUsage(ctx context.Context, key string, obs Observation) Result[int64]

	// Usage reads a usage record. Corrupt records read as NotFound.
	Usage(ctx context.Context, key string) Result[UsageRecord]

	Ping(ctx context.Context) error
	Close() error
}

// Observation carries the inputs of one usage increment
type Observation struct {
	At     time.Time
	Sample string
	Window time.Duration
}

// UsageRecord is the decoded usage hash of one fingerprint
type UsageRecord struct {
	Count     int64
	FirstUsed time.Time
	LastUsed  time.Time
	Query     string
}

// decodeUsage parses a usage hash. ok is false when required fields are
// missing or malformed.
func decodeUsage(fields map[string]string) (UsageRecord, bool) {
	if len(fields) == 0 {
		return UsageRecord{}, false
	}

	count, err := strconv.ParseInt(fields[fieldUsageCount], 10, 64)
	if err != nil || count < 1 {
		return UsageRecord{}, false
	}

	first, err := time.Parse(timestampLayout, fields[fieldFirstUsed])
	if err != nil {
		return UsageRecord{}, false
	}

	last, err := time.Parse(timestampLayout, fields[fieldLastUsed])
	if err != nil {
		last = first
	}

	return UsageRecord{
		Count:     count,
		FirstUsed: first,
		LastUsed:  last,
		Query:     fields[fieldQuery],
	}, true
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatCount(n int64) string {
	return strconv.FormatInt(n, 10)
}
