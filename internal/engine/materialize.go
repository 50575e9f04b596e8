package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/discovery"
)

// materialize produces and verifies one artifact. A rejected verification is
// fed back into the next materialization until VerifyAttempts is used up.
func (e *Engine) materialize(ctx context.Context, goal string, spec artifact.Spec, tier artifact.ModelTier, deps map[string]string) ArtifactResult {
	start := time.Now()
	res := ArtifactResult{Tier: tier}
	gctx := discovery.GraphContext{Goal: goal, Dependencies: deps, Tier: tier}

	for attempt := 1; attempt <= e.cfg.VerifyAttempts; attempt++ {
		res.Attempts = attempt
		gctx.Attempt = attempt

		content, err := discovery.Retry(ctx, e.cfg.Retry, "materialize", func(ctx context.Context, _ int) (string, error) {
			return e.provider.Materialize(ctx, spec, gctx)
		})
		if err != nil {
			res.Err = &ArtifactExecutionFailedError{ArtifactID: spec.ID, Attempts: attempt, Err: fmt.Errorf("materializing: %w", err)}
			break
		}
		res.Content = content

		if !e.verifies(spec) {
			break
		}

		verdict, err := discovery.Retry(ctx, e.cfg.Retry, "verify", func(ctx context.Context, _ int) (discovery.Verification, error) {
			return e.verifier.Verify(ctx, content, spec.Contract)
		})
		if err != nil {
			res.Err = &ArtifactExecutionFailedError{ArtifactID: spec.ID, Attempts: attempt, Err: fmt.Errorf("verifying: %w", err)}
			break
		}
		res.Verification = &verdict
		if verdict.Passed {
			res.Verified = true
			break
		}

		gctx.Feedback = feedback(verdict)
		if attempt == e.cfg.VerifyAttempts {
			res.Err = &VerificationFailedError{
				ArtifactID: spec.ID,
				Attempts:   attempt,
				Reason:     verdict.Reason,
				Gaps:       verdict.Gaps,
			}
		}
	}

	if res.Err != nil {
		res.Content = ""
	}
	res.Duration = time.Since(start)
	return res
}

func (e *Engine) verifies(spec artifact.Spec) bool {
	return e.cfg.Verify && e.verifier != nil && strings.TrimSpace(spec.Contract) != ""
}

func feedback(v discovery.Verification) string {
	var b strings.Builder
	b.WriteString("Previous attempt was rejected: ")
	b.WriteString(v.Reason)
	for _, gap := range v.Gaps {
		b.WriteString("\n- ")
		b.WriteString(gap)
	}
	return b.String()
}
