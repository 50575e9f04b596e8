package worker

import (
	"context"

	"basegraph.app/harmony/internal/queue"
	"basegraph.app/harmony/internal/service"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// Runner executes one queued run. service.RunService satisfies it.
type Runner interface {
	Run(ctx context.Context, req service.RunRequest) (*service.RunReport, error)
}
