package cache

// State is the cache lifecycle position of one fingerprint
type State int

const (
	// StateUnseen - no usage record and no cached answer
	StateUnseen State = iota

	// StateTracked - observed fewer times than the promotion threshold
	StateTracked

	// StateCached - an answer is stored; further observations are ignored
	// until its TTL elapses
	StateCached
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateTracked:
		return "tracked"
	case StateCached:
		return "cached"
	default:
		return "unseen"
	}
}

// Policy is the promotion rule: a fingerprint becomes cached once its
// usage count reaches Threshold.
type Policy struct {
	Threshold int64
}

// NewPolicy clamps threshold to at least 1
func NewPolicy(threshold int64) Policy {
	if threshold < 1 {
		threshold = 1
	}
	return Policy{Threshold: threshold}
}

// Transition returns the state after an observation that left the usage
// counter at count. Cached is terminal here; expiry moves a fingerprint
// back to unseen outside the policy.
func (p Policy) Transition(from State, count int64) State {
	switch {
	case from == StateCached:
		return StateCached
	case count >= p.Threshold:
		return StateCached
	case count > 0:
		return StateTracked
	default:
		return StateUnseen
	}
}

// Promotes reports whether moving from -> to means the answer must be written
func Promotes(from, to State) bool {
	return from != StateCached && to == StateCached
}
