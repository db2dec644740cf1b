package cache

import "fmt"

// Status tags the outcome of a single store operation
type Status int

const (
	// StatusOK - the operation succeeded and Value is meaningful
	StatusOK Status = iota

	// StatusNotFound - the key does not exist (or has expired)
	StatusNotFound

	// StatusUnavailable - the store could not be reached, timed out or
	// answered with an error. Callers apply the fail-open policy.
	StatusUnavailable
)

// String returns a human-readable status name
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the tagged outcome of a store operation. Store implementations
// never return bare errors; they fold them into StatusUnavailable.
type Result[T any] struct {
	Value  T
	Status Status
	Err    error
}

// OK wraps a successful value
func OK[T any](v T) Result[T] {
	return Result[T]{Value: v, Status: StatusOK}
}

// NotFound reports a missing key
func NotFound[T any]() Result[T] {
	return Result[T]{Status: StatusNotFound}
}

// Unavailable reports a store failure
func Unavailable[T any](err error) Result[T] {
	return Result[T]{Status: StatusUnavailable, Err: err}
}

// IsOK reports whether the operation succeeded
func (r Result[T]) IsOK() bool {
	return r.Status == StatusOK
}
