package artifact

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCycleDetected     = errors.New("cycle detected")
	ErrDanglingReference = errors.New("dangling reference")
	ErrDuplicateArtifact = errors.New("duplicate artifact")
	ErrGraphExplosion    = errors.New("graph explosion")
	ErrDepthExceeded     = errors.New("depth limit exceeded")
	ErrArtifactNotFound  = errors.New("artifact not found")
)

// CycleError reports the full cycle: each artifact in Path requires the next,
// and the last requires the first.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return ErrCycleDetected.Error()
	}
	return fmt.Sprintf("cycle detected: %s → %s", strings.Join(e.Path, " → "), e.Path[0])
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}

type DanglingReferenceError struct {
	MissingID    string
	ReferencedBy string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("artifact %q requires unknown artifact %q", e.ReferencedBy, e.MissingID)
}

func (e *DanglingReferenceError) Is(target error) bool {
	return target == ErrDanglingReference
}

type DuplicateArtifactError struct {
	ID string
}

func (e *DuplicateArtifactError) Error() string {
	return fmt.Sprintf("duplicate artifact id %q", e.ID)
}

func (e *DuplicateArtifactError) Is(target error) bool {
	return target == ErrDuplicateArtifact
}

type GraphExplosionError struct {
	Count int
	Limit int
}

func (e *GraphExplosionError) Error() string {
	return fmt.Sprintf("graph explosion: %d artifacts exceeds limit of %d", e.Count, e.Limit)
}

func (e *GraphExplosionError) Is(target error) bool {
	return target == ErrGraphExplosion
}

type DepthExceededError struct {
	Depth int
	Limit int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("graph depth %d exceeds limit of %d", e.Depth, e.Limit)
}

func (e *DepthExceededError) Is(target error) bool {
	return target == ErrDepthExceeded
}

// IsStructural reports whether err describes a bad graph rather than a transient fault.
func IsStructural(err error) bool {
	return errors.Is(err, ErrCycleDetected) ||
		errors.Is(err, ErrDanglingReference) ||
		errors.Is(err, ErrDuplicateArtifact) ||
		errors.Is(err, ErrGraphExplosion) ||
		errors.Is(err, ErrDepthExceeded)
}
