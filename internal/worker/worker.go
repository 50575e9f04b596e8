package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/harmony/common/logger"
	"basegraph.app/harmony/internal/queue"
	"basegraph.app/harmony/internal/service"
	"go.opentelemetry.io/otel/attribute"
)

type Config struct {
	MaxAttempts int
	ErrorDelay  time.Duration // pause after a failed read; defaults to one second
}

type Worker struct {
	consumer Consumer
	runner   Runner
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, runner Runner, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.ErrorDelay <= 0 {
		cfg.ErrorDelay = time.Second
	}
	return &Worker{
		consumer:  consumer,
		runner:    runner,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "harmony.worker",
	})
	slog.InfoContext(ctx, "worker started", "max_attempts", w.cfg.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				select {
				case <-ctx.Done():
				case <-w.stopCh:
				case <-time.After(w.cfg.ErrorDelay):
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		w.Handle(ctx, msg)
	}
	return nil
}

// Handle processes msg and settles it: acked on success, requeued or sent
// to the DLQ on failure. Exported so it can be reused by the reclaimer.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) {
	msgID := msg.ID
	runID := msg.RunID
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     &runID,
		MessageID: &msgID,
	})

	// Continue the trace of the request that queued the run.
	span := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.handle",
		attribute.Int64("run_id", runID),
		attribute.Int("attempt", msg.Attempt))
	defer span.End()
	ctx = span.Context()

	if err := w.processMessageSafe(ctx, msg); err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "message processing failed",
			"error", err,
			"attempt", msg.Attempt)
		w.handleFailedMessage(ctx, msg, err)
	}
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing", "panic", r)
			err = service.NewRetryableError(fmt.Errorf("panic: %v", r))
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage runs the job carried by msg and acks it on success.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	slog.InfoContext(ctx, "processing message",
		"task_type", msg.TaskType,
		"attempt", msg.Attempt)

	report, err := w.runner.Run(ctx, service.RunRequest{
		RunID:    msg.RunID,
		Goal:     msg.Goal,
		PlanOnly: msg.TaskType == queue.TaskTypePlan,
		Attempt:  int32(msg.Attempt),
	})
	if err != nil {
		return err
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The run is finished; a redelivery only repeats recorded work.
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
	}

	slog.InfoContext(ctx, "run processed",
		"status", report.Status,
		"duration_ms", report.DurationMS)
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if !service.IsRetryable(err) {
		slog.ErrorContext(ctx, "fatal run error, sending to DLQ", "attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ", "attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message", "attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
