package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrArtifactExecutionFailed = errors.New("artifact execution failed")
	ErrVerificationFailed      = errors.New("verification failed")
	ErrExecutionTimeout        = errors.New("execution timeout")
)

// ArtifactExecutionFailedError is a materialization or verification call
// that exhausted its retries.
type ArtifactExecutionFailedError struct {
	ArtifactID string
	Attempts   int
	Err        error
}

func (e *ArtifactExecutionFailedError) Error() string {
	return fmt.Sprintf("artifact %q failed after %d attempt(s): %v", e.ArtifactID, e.Attempts, e.Err)
}

func (e *ArtifactExecutionFailedError) Unwrap() error {
	return e.Err
}

func (e *ArtifactExecutionFailedError) Is(target error) bool {
	return target == ErrArtifactExecutionFailed
}

// VerificationFailedError means every materialization of the artifact was
// rejected by the verifier.
type VerificationFailedError struct {
	ArtifactID string
	Attempts   int
	Reason     string
	Gaps       []string
}

func (e *VerificationFailedError) Error() string {
	msg := fmt.Sprintf("artifact %q failed verification after %d attempt(s): %s", e.ArtifactID, e.Attempts, e.Reason)
	if len(e.Gaps) > 0 {
		msg += " (gaps: " + strings.Join(e.Gaps, "; ") + ")"
	}
	return msg
}

func (e *VerificationFailedError) Is(target error) bool {
	return target == ErrVerificationFailed
}

type ExecutionTimeoutError struct {
	Timeout time.Duration
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("execution timed out after %s", e.Timeout)
}

func (e *ExecutionTimeoutError) Is(target error) bool {
	return target == ErrExecutionTimeout
}
