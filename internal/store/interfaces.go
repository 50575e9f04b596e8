package store

import (
	"context"
	"errors"

	"basegraph.app/harmony/internal/events"
	"basegraph.app/harmony/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// RunStore defines the contract for run bookkeeping
type RunStore interface {
	Create(ctx context.Context, run *model.Run) (*model.Run, error)
	GetByID(ctx context.Context, id int64) (*model.Run, error)
	SetStatus(ctx context.Context, id int64, status model.RunStatus, attempt int32) error
	Finish(ctx context.Context, id int64, status model.RunStatus, errMsg *string, report []byte) error
}

// RunEventStore persists the event history of runs. It is the backing
// store of events.StoreSink.
type RunEventStore interface {
	events.Appender
	ListByRun(ctx context.Context, runID int64, afterID int64, limit int32) ([]model.RunEvent, error)
}
