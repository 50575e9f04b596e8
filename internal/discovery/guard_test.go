package discovery_test

import (
	"context"
	"errors"
	"time"

	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/discovery"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var errFlaky = errors.New("connection reset")

var _ = Describe("Guard", func() {
	ctx := context.Background()

	It("converts an expired per-call budget into a timeout error", func() {
		g := discovery.NewGuard(discovery.GuardConfig{Name: "test", CallTimeout: 10 * time.Millisecond})

		_, err := discovery.Call(ctx, g, "discover", func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
		Expect(err).To(MatchError(discovery.ErrDiscoveryTimeout))

		var timeout *discovery.TimeoutError
		Expect(errors.As(err, &timeout)).To(BeTrue())
		Expect(timeout.Op).To(Equal("discover"))
		Expect(discovery.Retryable(ctx, err)).To(BeTrue())
	})

	It("reports caller cancellation as is", func() {
		g := discovery.NewGuard(discovery.GuardConfig{Name: "test", CallTimeout: time.Minute})
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := discovery.Call(cctx, g, "discover", func(ctx context.Context) (int, error) {
			return 0, ctx.Err()
		})
		Expect(err).To(MatchError(context.Canceled))
		Expect(discovery.Retryable(cctx, err)).To(BeFalse())
	})

	It("opens the breaker after consecutive failures", func() {
		g := discovery.NewGuard(discovery.GuardConfig{Name: "test", MaxFailures: 2, OpenTimeout: time.Minute})
		calls := 0
		failing := func(ctx context.Context) (int, error) {
			calls++
			return 0, errFlaky
		}

		for range 2 {
			_, err := discovery.Call(ctx, g, "verify", failing)
			Expect(err).To(MatchError(errFlaky))
		}
		_, err := discovery.Call(ctx, g, "verify", failing)
		Expect(err).To(MatchError(discovery.ErrCircuitOpen))
		Expect(calls).To(Equal(2))
	})

	It("does not count permanent errors against the breaker", func() {
		g := discovery.NewGuard(discovery.GuardConfig{Name: "test", MaxFailures: 1})
		for range 3 {
			_, err := discovery.Call(ctx, g, "verify", func(ctx context.Context) (int, error) {
				return 0, discovery.Permanent(errors.New("bad request"))
			})
			Expect(discovery.IsPermanent(err)).To(BeTrue())
		}
	})

	It("treats a nil guard as a passthrough", func() {
		v, err := discovery.Call(ctx, nil, "op", func(ctx context.Context) (string, error) {
			return "ok", nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal("ok"))
	})

	DescribeTable("Retryable",
		func(err error, want bool) {
			Expect(discovery.Retryable(ctx, err)).To(Equal(want))
		},
		Entry("nil", nil, false),
		Entry("empty discovery", discovery.ErrEmptyDiscovery, true),
		Entry("open circuit", discovery.ErrCircuitOpen, true),
		Entry("network failure", errFlaky, true),
		Entry("permanent", discovery.Permanent(errFlaky), false),
		Entry("cycle", &artifact.CycleError{Path: []string{"A", "B"}}, false),
	)
})

var _ = Describe("GuardProvider", func() {
	It("keeps the expander capability of the wrapped provider", func() {
		wrapped := discovery.GuardProvider(&fakeLLMExpander{}, discovery.NewGuard(discovery.GuardConfig{}))
		_, ok := wrapped.(discovery.Expander)
		Expect(ok).To(BeTrue())
	})

	It("does not invent an expander", func() {
		wrapped := discovery.GuardProvider(&plainProvider{}, nil)
		_, ok := wrapped.(discovery.Expander)
		Expect(ok).To(BeFalse())
	})
})

type plainProvider struct{}

func (plainProvider) Discover(context.Context, string, discovery.PlanContext, discovery.Variance) ([]artifact.Spec, error) {
	return nil, nil
}

func (plainProvider) RefineOne(context.Context, string, *artifact.Graph, discovery.Weakness) ([]artifact.Spec, error) {
	return nil, nil
}

func (plainProvider) Materialize(context.Context, artifact.Spec, discovery.GraphContext) (string, error) {
	return "", nil
}

type fakeLLMExpander struct {
	plainProvider
}

func (fakeLLMExpander) DiscoverNew(context.Context, discovery.ExpansionRequest) ([]artifact.Spec, error) {
	return nil, nil
}
