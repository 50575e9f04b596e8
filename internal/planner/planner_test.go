package planner_test

import (
	"context"
	"time"

	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/discovery"
	"basegraph.app/harmony/internal/events"
	"basegraph.app/harmony/internal/planner"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Planner", func() {
	var (
		ctx      context.Context
		provider *fakeProvider
		rec      *events.Recorder
		cfg      planner.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		rec = &events.Recorder{}
		cfg = planner.Config{
			Candidates:       3,
			Strategy:         discovery.StrategyPrompting,
			RefinementRounds: 2,
			Weights:          planner.DefaultWeights(),
			Thresholds:       planner.DefaultThresholds(),
			Retry:            noRetry,
			MaxDepth:         10,
			Timeout:          time.Minute,
		}
		provider = &fakeProvider{
			discoverFn: func(_ context.Context, _ string, v discovery.Variance) ([]artifact.Spec, error) {
				switch v.PromptStyle {
				case discovery.StyleParallelFirst:
					return fan(4), nil
				case discovery.StyleMinimal:
					return chain(3), nil
				default:
					return fan(2), nil
				}
			},
			refineFn: func(context.Context, *artifact.Graph, discovery.Weakness) ([]artifact.Spec, error) {
				return chain(2), nil
			},
		}
	})

	It("selects the structurally best candidate", func() {
		plan, err := planner.New(provider, cfg).Plan(ctx, "build it", discovery.PlanContext{}, events.NewEmitter(rec, 5))
		Expect(err).NotTo(HaveOccurred())

		Expect(plan.Winner.Index).To(Equal(0))
		Expect(plan.Graph.Len()).To(Equal(5))
		Expect(plan.Rounds).To(BeEmpty())
		Expect(plan.Improvement()).To(BeZero())

		Expect(plan.Summaries).To(HaveLen(3))
		Expect(plan.Summaries[0].Selected).To(BeTrue())
		Expect(plan.Summaries[1].Metrics).NotTo(BeNil())
		Expect(plan.Summaries[1].Metrics.Score).To(BeNumerically("<", plan.Metrics.Score))
	})

	It("emits the planning events in causal order", func() {
		_, err := planner.New(provider, cfg).Plan(ctx, "build it", discovery.PlanContext{}, events.NewEmitter(rec, 5))
		Expect(err).NotTo(HaveOccurred())

		types := rec.Types()
		Expect(types[0]).To(Equal(events.PlanCandidatesStart))
		Expect(types).To(ContainElement(events.PlanCandidatesComplete))
		Expect(rec.OfType(events.PlanCandidateScored)).To(HaveLen(3))
		Expect(types[len(types)-1]).To(Equal(events.PlanWinner))

		winner := rec.OfType(events.PlanWinner)[0]
		Expect(winner.RunID).To(Equal(int64(5)))
		Expect(winner.Fields).To(HaveKeyWithValue("selected_candidate", 0))
		Expect(winner.Fields).To(HaveKey("selection_reason"))
		Expect(winner.Fields).To(HaveKey("score"))
	})

	It("refines a weak winner", func() {
		provider.discoverFn = func(context.Context, string, discovery.Variance) ([]artifact.Spec, error) {
			return chain(4), nil
		}
		provider.refineFn = func(context.Context, *artifact.Graph, discovery.Weakness) ([]artifact.Spec, error) {
			return fan(3), nil
		}

		plan, err := planner.New(provider, cfg).Plan(ctx, "build it", discovery.PlanContext{}, events.Discard())
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Rounds).To(HaveLen(1))
		Expect(plan.Rounds[0].Accepted).To(BeTrue())
		Expect(plan.Improvement()).To(BeNumerically(">", 0))
		Expect(plan.Initial.Score).To(BeNumerically("<", plan.Metrics.Score))
	})

	It("surfaces no viable candidates", func() {
		provider.discoverFn = func(context.Context, string, discovery.Variance) ([]artifact.Spec, error) {
			return []artifact.Spec{{ID: "x", Requires: []string{"x"}}}, nil
		}
		_, err := planner.New(provider, cfg).Plan(ctx, "build it", discovery.PlanContext{}, events.Discard())
		Expect(err).To(MatchError(planner.ErrNoViableCandidates))
	})

	It("reports a planning timeout", func() {
		cfg.Timeout = 20 * time.Millisecond
		provider.discoverFn = func(ctx context.Context, _ string, _ discovery.Variance) ([]artifact.Spec, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		_, err := planner.New(provider, cfg).Plan(ctx, "build it", discovery.PlanContext{}, events.Discard())
		Expect(err).To(MatchError(discovery.ErrDiscoveryTimeout))
	})
})
