package planner_test

import (
	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/planner"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Scorer", func() {
	scorer := planner.NewScorer(planner.DefaultWeights())

	It("scores a convergence graph", func() {
		m := scorer.Score(mustGraph([]artifact.Spec{{ID: "A"}, {ID: "B"}, {ID: "C", Requires: []string{"A", "B"}}}))

		Expect(m.ArtifactCount).To(Equal(3))
		Expect(m.EstimatedWaves).To(Equal(2))
		Expect(m.Depth).To(Equal(1))
		Expect(m.Width).To(Equal(2))
		Expect(m.LeafCount).To(Equal(2))
		Expect(m.ParallelismFactor).To(BeNumerically("~", 1.0/3, 1e-9))
		Expect(m.BalanceFactor).To(BeNumerically("~", 4.0/3, 1e-9))
		Expect(m.Score).To(BeNumerically("~", 100*(0.4/3+0.3*0.75)-5, 1e-9))
	})

	It("gives a single artifact no parallelism", func() {
		m := scorer.Score(mustGraph([]artifact.Spec{{ID: "only"}}))
		Expect(m.ParallelismFactor).To(BeZero())
		Expect(m.BalanceFactor).To(Equal(1.0))
		Expect(m.Score).To(BeNumerically("~", 30, 1e-9))
	})

	It("handles an empty graph", func() {
		m := scorer.Score(mustGraph(nil))
		Expect(m.ArtifactCount).To(BeZero())
		Expect(m.BalanceFactor).To(Equal(1.0))
	})

	It("prefers wide graphs to chains", func() {
		Expect(scorer.Score(mustGraph(fan(4))).Score).To(BeNumerically(">", scorer.Score(mustGraph(chain(5))).Score))
	})

	DescribeTable("file conflicts",
		func(locations []string, want int) {
			var specs []artifact.Spec
			for i, loc := range locations {
				specs = append(specs, artifact.Spec{ID: string(rune('a' + i)), ProducesLocation: loc})
			}
			Expect(scorer.Score(mustGraph(specs)).FileConflicts).To(Equal(want))
		},
		Entry("distinct", []string{"a.go", "b.go"}, 0),
		Entry("empty locations never conflict", []string{"", "", ""}, 0),
		Entry("one shared pair", []string{"a.go", "a.go", "b.go"}, 1),
		Entry("three on one location", []string{"a.go", "a.go", "a.go"}, 2),
	)

	It("deducts conflicts from the score", func() {
		clean := scorer.Score(mustGraph([]artifact.Spec{{ID: "a", ProducesLocation: "x"}, {ID: "b", ProducesLocation: "y"}}))
		clash := scorer.Score(mustGraph([]artifact.Spec{{ID: "a", ProducesLocation: "x"}, {ID: "b", ProducesLocation: "x"}}))
		Expect(clean.Score - clash.Score).To(BeNumerically("~", 15, 1e-9))
	})

	It("is deterministic", func() {
		g := mustGraph(fan(6))
		Expect(scorer.Score(g)).To(Equal(scorer.Score(g)))
	})

	It("uses the configured weights", func() {
		custom := planner.NewScorer(planner.Weights{Depth: 1})
		m := custom.Score(mustGraph(chain(3)))
		Expect(m.Score).To(BeNumerically("~", -2, 1e-9))
	})
})
