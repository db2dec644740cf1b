package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

const (
	answerKeyPrefix = "cache:query:"
	usageKeyPrefix  = "stats:query:"
)

// Fingerprint is the 128-bit hex digest of a normalized query
type Fingerprint string

// Normalize trims surrounding whitespace and lowercases the query.
// Inputs that differ only in case or surrounding whitespace normalize
// to the same string.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// FingerprintOf returns the fingerprint of a raw query. It is unsalted so
// keys survive process restarts.
func FingerprintOf(raw string) Fingerprint {
	sum := md5.Sum([]byte(Normalize(raw)))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// AnswerKey is the store key holding the cached answer text
func (f Fingerprint) AnswerKey() string {
	return answerKeyPrefix + string(f)
}

// UsageKey is the store key holding the usage record hash
func (f Fingerprint) UsageKey() string {
	return usageKeyPrefix + string(f)
}

// Short returns a log-friendly prefix of the fingerprint
func (f Fingerprint) Short() string {
	if len(f) > 12 {
		return string(f[:12])
	}
	return string(f)
}
