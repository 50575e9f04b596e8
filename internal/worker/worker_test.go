package worker_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/model"
	"basegraph.app/harmony/internal/queue"
	"basegraph.app/harmony/internal/service"
	"basegraph.app/harmony/internal/worker"
)

var _ = Describe("Worker", func() {
	var (
		ctx      context.Context
		consumer *fakeConsumer
		runner   *fakeRunner
		w        *worker.Worker
	)

	msg := func(id string, attempt int) queue.Message {
		return queue.Message{ID: id, TaskType: queue.TaskTypeRun, RunID: 42, Goal: "build a parser", Attempt: attempt}
	}

	BeforeEach(func() {
		ctx = context.Background()
		consumer = &fakeConsumer{}
		runner = &fakeRunner{}
		w = worker.New(consumer, runner, worker.Config{MaxAttempts: 3, ErrorDelay: time.Millisecond})
	})

	Describe("Handle", func() {
		It("runs the goal and acks the message", func() {
			w.Handle(ctx, msg("1-0", 1))

			Expect(runner.requests).To(HaveLen(1))
			Expect(runner.requests[0]).To(Equal(service.RunRequest{RunID: 42, Goal: "build a parser", Attempt: 1}))
			Expect(consumer.acked).To(Equal([]string{"1-0"}))
			Expect(consumer.requeued).To(BeEmpty())
			Expect(consumer.dlq).To(BeEmpty())
		})

		It("requests a plan only run for plan tasks", func() {
			m := msg("1-0", 1)
			m.TaskType = queue.TaskTypePlan

			w.Handle(ctx, m)

			Expect(runner.requests[0].PlanOnly).To(BeTrue())
		})

		It("requeues retryable failures below the attempt limit", func() {
			runner.runFn = func(context.Context, service.RunRequest) (*service.RunReport, error) {
				return nil, service.NewRetryableError(errors.New("provider unavailable"))
			}

			w.Handle(ctx, msg("1-0", 2))

			Expect(consumer.requeued).To(Equal([]string{"1-0"}))
			Expect(consumer.dlq).To(BeEmpty())
			Expect(consumer.acked).To(BeEmpty())
		})

		It("sends retryable failures to the DLQ at the attempt limit", func() {
			runner.runFn = func(context.Context, service.RunRequest) (*service.RunReport, error) {
				return nil, service.NewRetryableError(errors.New("provider unavailable"))
			}

			w.Handle(ctx, msg("1-0", 3))

			Expect(consumer.requeued).To(BeEmpty())
			Expect(consumer.dlq).To(HaveKeyWithValue("1-0", "provider unavailable"))
		})

		It("sends fatal failures straight to the DLQ", func() {
			runner.runFn = func(context.Context, service.RunRequest) (*service.RunReport, error) {
				return &service.RunReport{Status: model.RunStatusFailed},
					service.Classify(&artifact.CycleError{Path: []string{"A", "B"}})
			}

			w.Handle(ctx, msg("1-0", 1))

			Expect(consumer.requeued).To(BeEmpty())
			Expect(consumer.dlq).To(HaveKey("1-0"))
			Expect(consumer.dlq["1-0"]).To(ContainSubstring("cycle detected"))
		})

		It("recovers from a panicking run and retries it", func() {
			runner.runFn = func(context.Context, service.RunRequest) (*service.RunReport, error) {
				panic("nil map")
			}

			Expect(func() { w.Handle(ctx, msg("1-0", 1)) }).NotTo(Panic())
			Expect(consumer.requeued).To(Equal([]string{"1-0"}))
		})
	})

	Describe("Run", func() {
		It("processes batches until stopped", func() {
			consumer.batches = [][]queue.Message{
				{msg("1-0", 1), msg("2-0", 1)},
				{msg("3-0", 1)},
			}

			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()

			Eventually(consumer.ackedIDs).Should(Equal([]string{"1-0", "2-0", "3-0"}))
			w.Stop()
			Eventually(done).Should(Receive(BeNil()))
		})

		It("keeps reading after a read error", func() {
			consumer.readErr = errors.New("connection reset")
			consumer.batches = [][]queue.Message{{msg("1-0", 1)}}

			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()

			Eventually(consumer.ackedIDs).Should(Equal([]string{"1-0"}))
			w.Stop()
			Eventually(done).Should(Receive(BeNil()))
		})

		It("returns the context error when canceled", func() {
			runCtx, cancel := context.WithCancel(ctx)

			done := make(chan error, 1)
			go func() { done <- w.Run(runCtx) }()
			cancel()

			Eventually(done).Should(Receive(MatchError(context.Canceled)))
		})
	})
})
