package queue

import (
	"context"
	"fmt"
	"log/slog"

	"basegraph.app/harmony/common/logger"
	"github.com/redis/go-redis/v9"
)

type Producer interface {
	Enqueue(ctx context.Context, job PlanJob) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
}

func NewRedisProducer(client *redis.Client, stream string) Producer {
	return &redisProducer{
		client: client,
		stream: stream,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, job PlanJob) error {
	if job.RunID == 0 || job.Goal == "" {
		return fmt.Errorf("enqueue job: run id and goal are required")
	}
	if job.TaskType == "" {
		job.TaskType = TaskTypeRun
	}

	msg := Message{
		TaskType: job.TaskType,
		RunID:    job.RunID,
		Goal:     job.Goal,
		Attempt:  max(job.Attempt, 1),
	}
	if job.TraceID != nil {
		msg.TraceID = *job.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: messageValues(msg, msg.Attempt),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}

	slog.InfoContext(ctx, "enqueued run",
		"run_id", job.RunID,
		"task_type", job.TaskType,
		"goal", logger.Truncate(job.Goal, 120),
		"attempt", msg.Attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
