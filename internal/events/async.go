package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Async decouples a slow sink from the caller. Emit never blocks: when the
// buffer is full the event is dropped and counted.
type Async struct {
	sink    Sink
	ch      chan queued
	dropped atomic.Int64
	wg      sync.WaitGroup
	once    sync.Once
}

type queued struct {
	ctx context.Context
	ev  Event
}

func NewAsync(sink Sink, buffer int) *Async {
	a := &Async{sink: sink, ch: make(chan queued, max(buffer, 1))}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) Emit(ctx context.Context, e Event) error {
	select {
	case a.ch <- queued{ctx: context.WithoutCancel(ctx), ev: e}:
	default:
		a.dropped.Add(1)
	}
	return nil
}

func (a *Async) run() {
	defer a.wg.Done()
	for q := range a.ch {
		a.deliver(q)
	}
}

func (a *Async) deliver(q queued) {
	defer func() {
		if r := recover(); r != nil {
			slog.WarnContext(q.ctx, "async event sink panicked", "event_type", q.ev.Type)
		}
	}()
	if err := a.sink.Emit(q.ctx, q.ev); err != nil {
		slog.DebugContext(q.ctx, "async event sink error ignored",
			"event_type", q.ev.Type,
			"error", err)
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits for queued ones until ctx is done.
// Emit must not be called after Close.
func (a *Async) Close(ctx context.Context) error {
	a.once.Do(func() { close(a.ch) })

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
