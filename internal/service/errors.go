package service

import (
	"errors"

	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/discovery"
)

// RunError tells the worker whether a failed run is worth another attempt.
type RunError struct {
	Err       error
	Retryable bool
}

func (e *RunError) Error() string {
	return e.Err.Error()
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error) *RunError {
	return &RunError{Err: err, Retryable: true}
}

func NewFatalError(err error) *RunError {
	return &RunError{Err: err, Retryable: false}
}

// Classify wraps err as a RunError. Structural errors describe a bad graph
// and are fatal; timeouts and transient provider faults are retryable.
func Classify(err error) *RunError {
	if err == nil {
		return nil
	}
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr
	}
	if artifact.IsStructural(err) || discovery.IsPermanent(err) {
		return NewFatalError(err)
	}
	return NewRetryableError(err)
}

// IsRetryable reports whether err, classified, should be retried.
func IsRetryable(err error) bool {
	runErr := Classify(err)
	return runErr != nil && runErr.Retryable
}
