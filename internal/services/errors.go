package services

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySQL means the model produced no usable statement
	ErrEmptySQL = errors.New("generated SQL is empty")
	// ErrNotReadOnly means the statement is not a single SELECT
	ErrNotReadOnly = errors.New("generated SQL is not a single read-only SELECT")
	// ErrCircuitOpen is returned while the LLM circuit breaker is tripped
	ErrCircuitOpen = errors.New("LLM circuit breaker is open")
)

// Pipeline stages
const (
	StageGenerate = "generate"
	StageGuard    = "guard"
	StageQuery    = "query"
)

// StageError records which pipeline step failed
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the failed stage of err, or "unknown"
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "unknown"
}
