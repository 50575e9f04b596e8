package discovery

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDiscoveryTimeout = errors.New("discovery timeout")
	ErrEmptyDiscovery   = errors.New("discovery returned no artifacts")
	ErrCircuitOpen      = errors.New("discovery circuit open")
)

// TimeoutError is returned when a single external call exceeds its budget.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrDiscoveryTimeout
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
