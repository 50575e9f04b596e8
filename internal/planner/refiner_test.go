package planner_test

import (
	"context"
	"errors"
	"math/rand/v2"

	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/discovery"
	"basegraph.app/harmony/internal/events"
	"basegraph.app/harmony/internal/planner"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("IdentifyWeakness", func() {
	t := planner.DefaultThresholds()

	DescribeTable("priority",
		func(m planner.Metrics, want discovery.WeaknessKind, found bool) {
			w, ok := planner.IdentifyWeakness(m, t)
			Expect(ok).To(Equal(found))
			Expect(w.Kind).To(Equal(want))
		},
		Entry("low parallelism wins over everything",
			planner.Metrics{ArtifactCount: 5, ParallelismFactor: 0.2, BalanceFactor: 3, FileConflicts: 2}, discovery.WeaknessParallelism, true),
		Entry("then balance",
			planner.Metrics{ArtifactCount: 5, ParallelismFactor: 0.6, BalanceFactor: 2.5, FileConflicts: 2}, discovery.WeaknessBalance, true),
		Entry("then conflicts",
			planner.Metrics{ArtifactCount: 5, ParallelismFactor: 0.6, BalanceFactor: 1.5, FileConflicts: 1}, discovery.WeaknessConflicts, true),
		Entry("healthy plan",
			planner.Metrics{ArtifactCount: 5, ParallelismFactor: 0.6, BalanceFactor: 1.5}, discovery.WeaknessKind(""), false),
		Entry("single artifact plans cannot parallelize",
			planner.Metrics{ArtifactCount: 1, BalanceFactor: 1}, discovery.WeaknessKind(""), false),
	)

	It("describes deep plans in terms of the critical path", func() {
		w, ok := planner.IdentifyWeakness(planner.Metrics{Depth: 5, ArtifactCount: 5, EstimatedWaves: 5, ParallelismFactor: 0.2, BalanceFactor: 1}, t)
		Expect(ok).To(BeTrue())
		Expect(w.Description).To(ContainSubstring("critical path"))
	})
})

var _ = Describe("Refiner", func() {
	var (
		ctx      context.Context
		provider *fakeProvider
		scorer   *planner.Scorer
		refiner  *planner.Refiner
		rec      *events.Recorder
		em       *events.Emitter
	)

	BeforeEach(func() {
		ctx = context.Background()
		provider = &fakeProvider{}
		scorer = planner.NewScorer(planner.DefaultWeights())
		refiner = planner.NewRefiner(provider, scorer, planner.RefinerConfig{Thresholds: planner.DefaultThresholds(), Retry: noRetry})
		rec = &events.Recorder{}
		em = events.NewEmitter(rec, 1)
	})

	It("accepts an improving round and stops when no weakness is left", func() {
		provider.refineFn = func(context.Context, *artifact.Graph, discovery.Weakness) ([]artifact.Spec, error) {
			return fan(3), nil
		}
		g := mustGraph(chain(4))
		m := scorer.Score(g)

		final, fm, rounds := refiner.Refine(ctx, "goal", g, m, 3, em)
		Expect(rounds).To(HaveLen(1))
		Expect(rounds[0].Accepted).To(BeTrue())
		Expect(rounds[0].Weakness.Kind).To(Equal(discovery.WeaknessParallelism))
		Expect(fm.Score).To(BeNumerically(">", m.Score))
		Expect(final.Has("goal")).To(BeTrue())
		Expect(provider.refineCalls).To(Equal(1))

		Expect(rec.Types()).To(Equal([]events.Type{
			events.PlanRefineStart, events.PlanRefineAttempt, events.PlanRefineComplete, events.PlanRefineFinal,
		}))
	})

	It("stops at the first round that does not improve", func() {
		provider.refineFn = func(context.Context, *artifact.Graph, discovery.Weakness) ([]artifact.Spec, error) {
			return chain(4), nil
		}
		g := mustGraph(chain(4))
		m := scorer.Score(g)

		final, fm, rounds := refiner.Refine(ctx, "goal", g, m, 5, em)
		Expect(provider.refineCalls).To(Equal(1))
		Expect(rounds).To(HaveLen(1))
		Expect(rounds[0].Accepted).To(BeFalse())
		Expect(*rounds[0].ScoreAfter).To(Equal(m.Score))
		Expect(final).To(BeIdenticalTo(g))
		Expect(fm).To(Equal(m))
	})

	It("keeps the input when regeneration fails", func() {
		provider.refineFn = func(context.Context, *artifact.Graph, discovery.Weakness) ([]artifact.Spec, error) {
			return []artifact.Spec{{ID: "a", Requires: []string{"b"}}, {ID: "b", Requires: []string{"a"}}}, nil
		}
		g := mustGraph(chain(3))
		m := scorer.Score(g)

		final, _, rounds := refiner.Refine(ctx, "goal", g, m, 2, em)
		Expect(final).To(BeIdenticalTo(g))
		Expect(rounds).To(HaveLen(1))
		Expect(rounds[0].ScoreAfter).To(BeNil())
		Expect(rounds[0].Reason).To(ContainSubstring("cycle detected"))
	})

	It("skips provider calls for healthy plans", func() {
		g := mustGraph(fan(3))
		_, _, rounds := refiner.Refine(ctx, "goal", g, scorer.Score(g), 3, em)
		Expect(rounds).To(BeEmpty())
		Expect(provider.refineCalls).To(BeZero())
	})

	It("does nothing with zero rounds", func() {
		g := mustGraph(chain(3))
		_, _, rounds := refiner.Refine(ctx, "goal", g, scorer.Score(g), 0, em)
		Expect(rounds).To(BeNil())
		Expect(rec.Events()).To(BeEmpty())
	})

	It("never returns a lower score than it was given", func() {
		shapes := [][]artifact.Spec{chain(3), chain(6), fan(2), fan(5), chain(2)}
		for seed := range uint64(25) {
			rng := rand.New(rand.NewPCG(seed, seed))
			provider.refineFn = func(context.Context, *artifact.Graph, discovery.Weakness) ([]artifact.Spec, error) {
				if rng.IntN(6) == 0 {
					return nil, discovery.Permanent(errors.New("refusal"))
				}
				return shapes[rng.IntN(len(shapes))], nil
			}

			g := mustGraph(chain(5))
			m := scorer.Score(g)
			_, fm, rounds := refiner.Refine(ctx, "goal", g, m, 4, events.Discard())

			Expect(fm.Score).To(BeNumerically(">=", m.Score))
			for i, r := range rounds {
				if r.ScoreAfter != nil {
					Expect(r.Accepted).To(Equal(*r.ScoreAfter > r.ScoreBefore))
				}
				if !r.Accepted {
					Expect(i).To(Equal(len(rounds)-1), "a rejected round must be the last one")
				}
			}
		}
	})
})
