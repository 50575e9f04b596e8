package discovery_test

import (
	"context"
	"errors"

	"basegraph.app/harmony/internal/discovery"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Retry", func() {
	ctx := context.Background()
	policy := discovery.RetryPolicy{Attempts: 3}

	It("retries transient failures until success", func() {
		var seen []int
		v, err := discovery.Retry(ctx, policy, "discover", func(ctx context.Context, attempt int) (string, error) {
			seen = append(seen, attempt)
			if attempt < 3 {
				return "", errFlaky
			}
			return "done", nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal("done"))
		Expect(seen).To(Equal([]int{1, 2, 3}))
	})

	It("gives up after the attempt budget", func() {
		calls := 0
		_, err := discovery.Retry(ctx, policy, "discover", func(ctx context.Context, attempt int) (int, error) {
			calls++
			return 0, discovery.ErrEmptyDiscovery
		})
		Expect(err).To(MatchError(discovery.ErrEmptyDiscovery))
		Expect(calls).To(Equal(3))
	})

	It("stops at the first permanent error", func() {
		calls := 0
		bad := errors.New("invalid api key")
		_, err := discovery.Retry(ctx, policy, "discover", func(ctx context.Context, attempt int) (int, error) {
			calls++
			return 0, discovery.Permanent(bad)
		})
		Expect(err).To(MatchError(bad))
		Expect(calls).To(Equal(1))
	})

	It("always makes at least one attempt", func() {
		calls := 0
		_, err := discovery.Retry(ctx, discovery.RetryPolicy{}, "verify", func(ctx context.Context, attempt int) (int, error) {
			calls++
			return 1, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(1))
	})
})
