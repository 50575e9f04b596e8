package planner_test

import (
	"context"
	"errors"
	"strings"

	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/discovery"
	"basegraph.app/harmony/internal/events"
	"basegraph.app/harmony/internal/planner"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Generator", func() {
	var (
		ctx      context.Context
		provider *fakeProvider
		rec      *events.Recorder
		em       *events.Emitter
	)

	BeforeEach(func() {
		ctx = context.Background()
		provider = &fakeProvider{}
		rec = &events.Recorder{}
		em = events.NewEmitter(rec, 1)
	})

	It("runs one slot per variance and tags provenance", func() {
		provider.discoverFn = func(_ context.Context, _ string, v discovery.Variance) ([]artifact.Spec, error) {
			return fan(v.Index + 1), nil
		}
		gen := planner.NewGenerator(provider, planner.GeneratorConfig{Retry: noRetry})

		slots, err := gen.Generate(ctx, "goal", discovery.PlanContext{}, discovery.Variances(discovery.StrategyPrompting, 3), em)
		Expect(err).NotTo(HaveOccurred())
		Expect(slots).To(HaveLen(3))
		for i, s := range slots {
			Expect(s.Err).NotTo(HaveOccurred())
			Expect(s.Index).To(Equal(i))
			Expect(s.Candidate.Graph.Len()).To(Equal(i + 2))
			spec, _ := s.Candidate.Graph.Get("goal")
			Expect(spec.Metadata).To(HaveKeyWithValue("variance", s.Variance.Label()))
		}

		Expect(rec.OfType(events.PlanCandidatesStart)).To(HaveLen(1))
		Expect(rec.OfType(events.PlanCandidatesStart)[0].Fields).To(HaveKeyWithValue("total_candidates", 3))

		var progress []any
		for _, e := range rec.OfType(events.PlanCandidateGenerated) {
			progress = append(progress, e.Fields["progress"])
		}
		Expect(progress).To(ConsistOf(1, 2, 3))

		done := rec.OfType(events.PlanCandidatesComplete)
		Expect(done).To(HaveLen(1))
		Expect(done[0].Fields).To(HaveKeyWithValue("succeeded", 3))
		Expect(done[0].Fields).To(HaveKeyWithValue("failed", 0))
	})

	It("records failed slots without aborting the batch", func() {
		provider.discoverFn = func(_ context.Context, _ string, v discovery.Variance) ([]artifact.Spec, error) {
			switch v.Index {
			case 0:
				return nil, discovery.Permanent(errors.New("refused"))
			case 1:
				return []artifact.Spec{{ID: "a", Requires: []string{"b"}}, {ID: "b", Requires: []string{"a"}}}, nil
			default:
				return fan(2), nil
			}
		}
		gen := planner.NewGenerator(provider, planner.GeneratorConfig{Retry: noRetry})

		slots, err := gen.Generate(ctx, "goal", discovery.PlanContext{}, discovery.Variances(discovery.StrategyPrompting, 3), em)
		Expect(err).NotTo(HaveOccurred())
		Expect(slots[0].Candidate).To(BeNil())
		Expect(slots[0].Err).To(MatchError(ContainSubstring("refused")))
		Expect(slots[1].Err).To(MatchError(artifact.ErrCycleDetected))
		Expect(slots[2].Candidate).NotTo(BeNil())
	})

	It("drops candidates deeper than the limit", func() {
		provider.discoverFn = func(context.Context, string, discovery.Variance) ([]artifact.Spec, error) {
			return chain(5), nil
		}
		gen := planner.NewGenerator(provider, planner.GeneratorConfig{Retry: noRetry, MaxDepth: 3})

		_, err := gen.Generate(ctx, "goal", discovery.PlanContext{}, discovery.Variances(discovery.StrategyPrompting, 1), em)
		Expect(err).To(MatchError(planner.ErrNoViableCandidates))
		Expect(err.Error()).To(ContainSubstring("depth 4 exceeds limit of 3"))
	})

	It("retries empty discovery with a hint", func() {
		var goals []string
		provider.discoverFn = func(_ context.Context, goal string, v discovery.Variance) ([]artifact.Spec, error) {
			goals = append(goals, v.Apply(goal))
			if len(goals) == 1 {
				return nil, nil
			}
			return fan(2), nil
		}
		gen := planner.NewGenerator(provider, planner.GeneratorConfig{Retry: discovery.RetryPolicy{Attempts: 3}})

		slots, err := gen.Generate(ctx, "goal", discovery.PlanContext{}, discovery.Variances(discovery.StrategyPrompting, 1), em)
		Expect(err).NotTo(HaveOccurred())
		Expect(slots[0].Candidate).NotTo(BeNil())
		Expect(goals).To(HaveLen(2))
		Expect(goals[0]).NotTo(ContainSubstring("Previous attempt"))
		Expect(goals[1]).To(ContainSubstring("Previous attempt found no artifacts"))
		Expect(slots[0].Candidate.Variance.Hint).To(BeEmpty())
	})

	It("reports every failure when no candidate survives", func() {
		provider.discoverFn = func(context.Context, string, discovery.Variance) ([]artifact.Spec, error) {
			return []artifact.Spec{{ID: "a", Requires: []string{"ghost"}}}, nil
		}
		gen := planner.NewGenerator(provider, planner.GeneratorConfig{Retry: noRetry})

		slots, err := gen.Generate(ctx, "goal", discovery.PlanContext{}, discovery.Variances(discovery.StrategyMixed, 2), em)
		Expect(slots).To(HaveLen(2))

		var nv *planner.NoViableCandidatesError
		Expect(errors.As(err, &nv)).To(BeTrue())
		Expect(nv.Failures).To(HaveLen(2))
		Expect(strings.Join(nv.Failures, "\n")).To(ContainSubstring(`unknown artifact "ghost"`))
		Expect(rec.OfType(events.PlanCandidateGenerated)).To(BeEmpty())
	})

	It("bounds concurrent discovery calls", func() {
		inFlight, peak := 0, 0
		release := make(chan struct{})
		provider.discoverFn = func(context.Context, string, discovery.Variance) ([]artifact.Spec, error) {
			provider.mu.Lock()
			inFlight++
			peak = max(peak, inFlight)
			provider.mu.Unlock()
			<-release
			provider.mu.Lock()
			inFlight--
			provider.mu.Unlock()
			return fan(2), nil
		}
		gen := planner.NewGenerator(provider, planner.GeneratorConfig{Retry: noRetry, Parallel: 2})

		done := make(chan error)
		go func() {
			_, err := gen.Generate(ctx, "goal", discovery.PlanContext{}, discovery.Variances(discovery.StrategyPrompting, 5), em)
			done <- err
		}()
		Eventually(func() int {
			provider.mu.Lock()
			defer provider.mu.Unlock()
			return inFlight
		}).Should(Equal(2))
		close(release)
		Eventually(done).Should(Receive(BeNil()))
		Expect(peak).To(Equal(2))
	})
})
