package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/harmony/common/llm"
	"basegraph.app/harmony/internal/artifact"
	"github.com/sony/gobreaker"
)

type GuardConfig struct {
	Name        string
	CallTimeout time.Duration
	// MaxFailures consecutive failures open the breaker. Zero disables it.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Guard bounds every external call with a timeout and a circuit breaker.
type Guard struct {
	name    string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

func NewGuard(cfg GuardConfig) *Guard {
	g := &Guard{name: cfg.Name, timeout: cfg.CallTimeout}
	if cfg.MaxFailures == 0 {
		return g
	}

	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("discovery circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})
	return g
}

// Call runs fn under the guard. A call that outlives the per-call timeout
// while ctx is still live returns a *TimeoutError.
func Call[T any](ctx context.Context, g *Guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if g == nil {
		return fn(ctx)
	}

	run := func() (T, error) {
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}

		v, err := fn(callCtx)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return zero, &TimeoutError{Op: op, Timeout: g.timeout}
		}
		return v, err
	}

	if g.breaker == nil {
		return run()
	}

	out, err := g.breaker.Execute(func() (any, error) {
		return run()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, fmt.Errorf("%s: %w", op, ErrCircuitOpen)
	}
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}

// Retryable classifies an error from a guarded call.
func Retryable(ctx context.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case ctx.Err() != nil:
		return false
	case IsPermanent(err), artifact.IsStructural(err):
		return false
	case errors.Is(err, ErrDiscoveryTimeout),
		errors.Is(err, ErrEmptyDiscovery),
		errors.Is(err, ErrCircuitOpen):
		return true
	default:
		return llm.IsRetryable(ctx, err)
	}
}

type guardedProvider struct {
	inner Provider
	guard *Guard
}

type guardedExpander struct {
	guardedProvider
	expander Expander
}

// GuardProvider wraps every call of p with g. The result implements Expander
// when p does.
func GuardProvider(p Provider, g *Guard) Provider {
	gp := guardedProvider{inner: p, guard: g}
	if e, ok := p.(Expander); ok {
		return &guardedExpander{guardedProvider: gp, expander: e}
	}
	return &gp
}

func (p *guardedProvider) Discover(ctx context.Context, goal string, pctx PlanContext, v Variance) ([]artifact.Spec, error) {
	return Call(ctx, p.guard, "discover", func(ctx context.Context) ([]artifact.Spec, error) {
		return p.inner.Discover(ctx, goal, pctx, v)
	})
}

func (p *guardedProvider) RefineOne(ctx context.Context, goal string, g *artifact.Graph, w Weakness) ([]artifact.Spec, error) {
	return Call(ctx, p.guard, "refine", func(ctx context.Context) ([]artifact.Spec, error) {
		return p.inner.RefineOne(ctx, goal, g, w)
	})
}

func (p *guardedProvider) Materialize(ctx context.Context, spec artifact.Spec, gctx GraphContext) (string, error) {
	return Call(ctx, p.guard, "materialize", func(ctx context.Context) (string, error) {
		return p.inner.Materialize(ctx, spec, gctx)
	})
}

func (p *guardedExpander) DiscoverNew(ctx context.Context, req ExpansionRequest) ([]artifact.Spec, error) {
	return Call(ctx, p.guard, "discover_new", func(ctx context.Context) ([]artifact.Spec, error) {
		return p.expander.DiscoverNew(ctx, req)
	})
}

type guardedVerifier struct {
	inner Verifier
	guard *Guard
}

func GuardVerifier(v Verifier, g *Guard) Verifier {
	return &guardedVerifier{inner: v, guard: g}
}

func (v *guardedVerifier) Verify(ctx context.Context, content, contract string) (Verification, error) {
	return Call(ctx, v.guard, "verify", func(ctx context.Context) (Verification, error) {
		return v.inner.Verify(ctx, content, contract)
	})
}
