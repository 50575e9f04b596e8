package handler_test

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"basegraph.app/harmony/internal/events"
	"basegraph.app/harmony/internal/model"
	"basegraph.app/harmony/internal/queue"
	"basegraph.app/harmony/internal/store"
)

type mockRunStore struct {
	createFn  func(ctx context.Context, run *model.Run) (*model.Run, error)
	getByIDFn func(ctx context.Context, id int64) (*model.Run, error)
	finished  map[int64]model.RunStatus
}

func (m *mockRunStore) Create(ctx context.Context, run *model.Run) (*model.Run, error) {
	if m.createFn != nil {
		return m.createFn(ctx, run)
	}
	return run, nil
}

func (m *mockRunStore) GetByID(ctx context.Context, id int64) (*model.Run, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockRunStore) SetStatus(context.Context, int64, model.RunStatus, int32) error {
	return nil
}

func (m *mockRunStore) Finish(_ context.Context, id int64, status model.RunStatus, _ *string, _ []byte) error {
	if m.finished == nil {
		m.finished = make(map[int64]model.RunStatus)
	}
	m.finished[id] = status
	return nil
}

type mockRunEventStore struct {
	listFn func(ctx context.Context, runID, afterID int64, limit int32) ([]model.RunEvent, error)
}

func (m *mockRunEventStore) AppendEvent(context.Context, events.Event) error {
	return nil
}

func (m *mockRunEventStore) ListByRun(ctx context.Context, runID, afterID int64, limit int32) ([]model.RunEvent, error) {
	if m.listFn != nil {
		return m.listFn(ctx, runID, afterID, limit)
	}
	return nil, nil
}

type mockProducer struct {
	jobs      []queue.PlanJob
	enqueueFn func(ctx context.Context, job queue.PlanJob) error
}

func (m *mockProducer) Enqueue(ctx context.Context, job queue.PlanJob) error {
	m.jobs = append(m.jobs, job)
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, job)
	}
	return nil
}

func (m *mockProducer) Close() error {
	return nil
}

// fakeStreamReader serves scripted XRead results, then redis.Nil.
type fakeStreamReader struct {
	mu      sync.Mutex
	results [][]redis.XStream
	args    []*redis.XReadArgs
}

func (f *fakeStreamReader) XRead(_ context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.args = append(f.args, a)
	if len(f.results) == 0 {
		return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
	}
	res := f.results[0]
	f.results = f.results[1:]
	return redis.NewXStreamSliceCmdResult(res, nil)
}
