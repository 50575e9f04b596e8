package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Emitter stamps events and delivers them to a sink. Sink errors and panics
// are logged and swallowed. A nil *Emitter discards everything.
type Emitter struct {
	sink  Sink
	runID int64
	now   func() time.Time
}

func NewEmitter(sink Sink, runID int64) *Emitter {
	return &Emitter{sink: sink, runID: runID, now: time.Now}
}

// Discard returns an emitter with no sink.
func Discard() *Emitter {
	return &Emitter{}
}

func (e *Emitter) RunID() int64 {
	if e == nil {
		return 0
	}
	return e.runID
}

func (e *Emitter) Emit(ctx context.Context, typ Type, fields Fields) {
	if e == nil || e.sink == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.WarnContext(ctx, "event sink panicked",
				"event_type", typ,
				"panic", fmt.Sprint(r))
		}
	}()

	ev := Event{Type: typ, Time: e.now().UTC(), RunID: e.runID, Fields: fields}
	if err := e.sink.Emit(ctx, ev); err != nil {
		slog.DebugContext(ctx, "event sink error ignored",
			"event_type", typ,
			"error", err)
	}
}
