package artifact_test

import (
	"context"
	"errors"
	"fmt"

	"basegraph.app/harmony/internal/artifact"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func spec(id string, requires ...string) artifact.Spec {
	return artifact.Spec{ID: id, Description: id, Contract: "provides " + id, Requires: requires}
}

func waveIndex(waves [][]string) map[string]int {
	out := make(map[string]int)
	for i, w := range waves {
		for _, id := range w {
			out[id] = i
		}
	}
	return out
}

var _ = Describe("Resolve", func() {
	ctx := context.Background()

	It("layers independent leaves before their convergence node", func() {
		res, err := artifact.Resolve(ctx, []artifact.Spec{spec("A"), spec("B"), spec("C", "A", "B")})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Waves).To(Equal([][]string{{"A", "B"}, {"C"}}))
		Expect(res.Roots).To(Equal([]string{"C"}))
		Expect(res.Leaves).To(Equal([]string{"A", "B"}))
		Expect(res.AmbiguousRoot).To(BeFalse())
		Expect(res.Orphans).To(BeEmpty())
	})

	It("places every requirement in an earlier wave", func() {
		specs := []artifact.Spec{
			spec("api", "schema", "auth"),
			spec("schema"),
			spec("auth", "schema"),
			spec("ui", "api"),
			spec("docs", "api", "ui"),
			spec("tests", "api", "auth"),
		}
		res, err := artifact.Resolve(ctx, specs)
		Expect(err).NotTo(HaveOccurred())

		wave := waveIndex(res.Waves)
		Expect(wave).To(HaveLen(len(specs)))
		for _, s := range specs {
			for _, req := range s.Requires {
				Expect(wave[req]).To(BeNumerically("<", wave[s.ID]), "%s requires %s", s.ID, req)
			}
		}
	})

	It("produces identical partitions on repeated resolution", func() {
		specs := []artifact.Spec{spec("d", "b", "c"), spec("c", "a"), spec("b", "a"), spec("a"), spec("e")}
		first, err := artifact.Resolve(ctx, specs)
		Expect(err).NotTo(HaveOccurred())
		second, err := artifact.Resolve(ctx, specs)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Waves).To(Equal(first.Waves))
	})

	It("reports the full cycle path", func() {
		_, err := artifact.Resolve(ctx, []artifact.Spec{spec("A", "B"), spec("B", "A")})
		Expect(err).To(MatchError(artifact.ErrCycleDetected))

		var cycle *artifact.CycleError
		Expect(errors.As(err, &cycle)).To(BeTrue())
		Expect(cycle.Path).To(Equal([]string{"A", "B"}))
		Expect(err.Error()).To(Equal("cycle detected: A → B → A"))
	})

	It("reports longer cycles without the acyclic prefix", func() {
		_, err := artifact.Resolve(ctx, []artifact.Spec{
			spec("entry", "x"),
			spec("x", "y"),
			spec("y", "z"),
			spec("z", "x"),
		})
		var cycle *artifact.CycleError
		Expect(errors.As(err, &cycle)).To(BeTrue())
		Expect(cycle.Path).To(Equal([]string{"x", "y", "z"}))
	})

	It("rejects self dependencies", func() {
		_, err := artifact.Resolve(ctx, []artifact.Spec{spec("A", "A")})
		var cycle *artifact.CycleError
		Expect(errors.As(err, &cycle)).To(BeTrue())
		Expect(cycle.Path).To(Equal([]string{"A"}))
	})

	It("reports dangling references with both ends", func() {
		_, err := artifact.Resolve(ctx, []artifact.Spec{spec("A"), spec("B", "A", "ghost")})
		Expect(err).To(MatchError(artifact.ErrDanglingReference))

		var dangling *artifact.DanglingReferenceError
		Expect(errors.As(err, &dangling)).To(BeTrue())
		Expect(dangling.MissingID).To(Equal("ghost"))
		Expect(dangling.ReferencedBy).To(Equal("B"))
		Expect(artifact.IsStructural(err)).To(BeTrue())
	})

	It("rejects duplicate ids", func() {
		_, err := artifact.Resolve(ctx, []artifact.Spec{spec("A"), spec("A")})
		Expect(err).To(MatchError(artifact.ErrDuplicateArtifact))
	})

	It("treats an empty spec set as an empty plan", func() {
		res, err := artifact.Resolve(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Waves).To(BeEmpty())
	})

	Context("roots and orphans", func() {
		It("flags multiple roots as ambiguous", func() {
			res, err := artifact.Resolve(ctx, []artifact.Spec{spec("A"), spec("B", "A"), spec("C", "A")})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Roots).To(Equal([]string{"B", "C"}))
			Expect(res.AmbiguousRoot).To(BeTrue())
		})

		It("retains artifacts unreachable from declared roots", func() {
			res, err := artifact.Resolve(ctx, []artifact.Spec{
				spec("model"),
				spec("service", "model"),
				spec("changelog"),
				spec("notes", "changelog"),
			}, artifact.WithRoots("service"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Orphans).To(Equal([]string{"changelog", "notes"}))
			Expect(waveIndex(res.Waves)).To(HaveKey("notes"))
		})

		It("flags isolated artifacts when no roots are declared", func() {
			res, err := artifact.Resolve(ctx, []artifact.Spec{spec("A"), spec("B", "A"), spec("readme")})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Orphans).To(Equal([]string{"readme"}))
		})

		It("rejects unknown declared roots", func() {
			_, err := artifact.Resolve(ctx, []artifact.Spec{spec("A")}, artifact.WithRoots("missing"))
			Expect(err).To(MatchError(artifact.ErrDanglingReference))
		})
	})

	It("handles wide graphs", func() {
		var specs []artifact.Spec
		var leaves []string
		for i := range 20 {
			id := fmt.Sprintf("leaf-%02d", i)
			leaves = append(leaves, id)
			specs = append(specs, spec(id))
		}
		specs = append(specs, spec("goal", leaves...))

		res, err := artifact.Resolve(ctx, specs)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Waves).To(HaveLen(2))
		Expect(res.Waves[0]).To(Equal(leaves))
	})
})
