package service_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/harmony/core/config"
	"basegraph.app/harmony/internal/discovery"
	"basegraph.app/harmony/internal/events"
	"basegraph.app/harmony/internal/service"
)

type appenderFunc func(ctx context.Context, e events.Event) error

func (f appenderFunc) AppendEvent(ctx context.Context, e events.Event) error {
	return f(ctx, e)
}

var _ = Describe("factory", func() {
	var cfg config.Config

	BeforeEach(func() {
		cfg = config.Config{
			Planner: config.PlannerConfig{
				Candidates:       4,
				Variance:         "mixed",
				RefinementRounds: 2,
				CallAttempts:     3,
				Weights:          config.WeightsConfig{Parallelism: 0.4, Balance: 0.3, Depth: 5, Conflicts: 15},
				MinParallelism:   0.5,
				MaxBalance:       2,
				PlanningTimeout:  time.Minute,
			},
			Limits: config.LimitsConfig{
				MaxArtifacts:       50,
				MaxDiscoveryRounds: 3,
				MaxDepth:           10,
				CallTimeout:        30 * time.Second,
				ExecutionTimeout:   time.Hour,
			},
			Execution: config.ExecutionConfig{
				Concurrency:      4,
				VerifyAttempts:   2,
				CallAttempts:     3,
				Verify:           true,
				DynamicExpansion: true,
			},
		}
	})

	Describe("PlannerConfig", func() {
		It("maps planner and limit settings", func() {
			pcfg, err := service.PlannerConfig(cfg)

			Expect(err).NotTo(HaveOccurred())
			Expect(pcfg.Candidates).To(Equal(4))
			Expect(pcfg.Strategy).To(Equal(discovery.StrategyMixed))
			Expect(pcfg.Weights.Conflicts).To(Equal(15.0))
			Expect(pcfg.Thresholds.MaxBalance).To(Equal(2.0))
			Expect(pcfg.Retry.Attempts).To(Equal(3))
			Expect(pcfg.MaxDepth).To(Equal(10))
			Expect(pcfg.Timeout).To(Equal(time.Minute))
		})

		It("rejects an unknown variance strategy", func() {
			cfg.Planner.Variance = "chaos"

			_, err := service.PlannerConfig(cfg)

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("EngineConfig", func() {
		It("maps execution and limit settings", func() {
			ecfg := service.EngineConfig(cfg)

			Expect(ecfg.Concurrency).To(Equal(4))
			Expect(ecfg.VerifyAttempts).To(Equal(2))
			Expect(ecfg.Verify).To(BeTrue())
			Expect(ecfg.DynamicExpansion).To(BeTrue())
			Expect(ecfg.MaxArtifacts).To(Equal(50))
			Expect(ecfg.MaxDiscoveryRounds).To(Equal(3))
			Expect(ecfg.ExecutionTimeout).To(Equal(time.Hour))
			Expect(ecfg.Retry.Attempts).To(Equal(3))
		})
	})

	Describe("NewEventSink", func() {
		It("works with no backends", func() {
			sink, async := service.NewEventSink(nil, cfg.Redis, nil)

			Expect(async).To(BeNil())
			Expect(sink.Emit(context.Background(), events.Event{Type: events.WaveStart})).To(Succeed())
		})

		It("delivers to the history store asynchronously", func() {
			got := make(chan events.Event, 1)
			sink, async := service.NewEventSink(nil, cfg.Redis, appenderFunc(func(_ context.Context, e events.Event) error {
				got <- e
				return nil
			}))
			Expect(async).NotTo(BeNil())

			Expect(sink.Emit(context.Background(), events.Event{Type: events.WaveStart, RunID: 3})).To(Succeed())

			Eventually(got).Should(Receive(HaveField("RunID", int64(3))))
			Expect(async.Close(context.Background())).To(Succeed())
		})
	})
})
