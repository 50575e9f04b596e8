package events

import "context"

// Appender persists events. store.EventStore implements it.
type Appender interface {
	AppendEvent(ctx context.Context, e Event) error
}

// StoreSink writes events to durable storage.
type StoreSink struct {
	store Appender
}

func NewStoreSink(store Appender) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Emit(ctx context.Context, e Event) error {
	return s.store.AppendEvent(ctx, e)
}
