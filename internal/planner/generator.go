package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"basegraph.app/harmony/common/logger"
	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/discovery"
	"basegraph.app/harmony/internal/events"
)

var ErrNoViableCandidates = errors.New("no viable candidates")

// NoViableCandidatesError lists why every candidate slot failed.
type NoViableCandidatesError struct {
	Failures []string
}

func (e *NoViableCandidatesError) Error() string {
	return fmt.Sprintf("no viable candidates: %s", strings.Join(e.Failures, "; "))
}

func (e *NoViableCandidatesError) Is(target error) bool {
	return target == ErrNoViableCandidates
}

// Candidate is one complete proposed graph.
type Candidate struct {
	Index    int
	Variance discovery.Variance
	Graph    *artifact.Graph
	Metrics  Metrics
}

// Slot is the outcome of one generation slot. Exactly one of Candidate and
// Err is set.
type Slot struct {
	Index     int
	Variance  discovery.Variance
	Candidate *Candidate
	Err       error
}

type GeneratorConfig struct {
	Retry    discovery.RetryPolicy
	MaxDepth int
	// Parallel caps concurrent discovery calls. Zero runs every slot at once.
	Parallel int
}

// Generator produces candidate graphs concurrently.
type Generator struct {
	provider discovery.Provider
	cfg      GeneratorConfig
}

func NewGenerator(provider discovery.Provider, cfg GeneratorConfig) *Generator {
	return &Generator{provider: provider, cfg: cfg}
}

const emptyDiscoveryHint = "Previous attempt found no artifacts. Be more concrete about what files and components need to be created."

// Generate runs one discovery slot per variance. A slot that exhausts its
// retries or fails resolution is reported in its Slot; only when every slot
// fails does Generate return an error.
func (g *Generator) Generate(ctx context.Context, goal string, pctx discovery.PlanContext, variances []discovery.Variance, em *events.Emitter) ([]Slot, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "harmony.planner.generator"})
	span := logger.StartSpan(ctx, "planner.generate_candidates")
	defer span.End()
	ctx = span.Context()

	total := len(variances)
	start := time.Now()
	em.Emit(ctx, events.PlanCandidatesStart, events.Fields{"total_candidates": total})
	slog.InfoContext(ctx, "generating plan candidates", "total", total)

	slots := make([]Slot, total)
	var wg sync.WaitGroup
	var generated atomic.Int32

	parallel := g.cfg.Parallel
	if parallel <= 0 {
		parallel = max(total, 1)
	}
	sem := make(chan struct{}, parallel)

	for i, v := range variances {
		wg.Add(1)
		go func(idx int, v discovery.Variance) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			slotCtx := logger.WithLogFields(ctx, logger.LogFields{CandidateIndex: logger.Ptr(idx)})
			cand, err := g.generateOne(slotCtx, goal, pctx, idx, v)
			slots[idx] = Slot{Index: idx, Variance: v, Candidate: cand, Err: err}
			if err != nil {
				slog.WarnContext(slotCtx, "plan candidate failed",
					"variance", v.Label(),
					"error", err)
				return
			}

			n := generated.Add(1)
			em.Emit(slotCtx, events.PlanCandidateGenerated, events.Fields{
				"candidate_index":  idx,
				"variance":         v.Label(),
				"artifact_count":   cand.Graph.Len(),
				"progress":         int(n),
				"total_candidates": total,
			})
		}(i, v)
	}
	wg.Wait()

	succeeded := int(generated.Load())
	em.Emit(ctx, events.PlanCandidatesComplete, events.Fields{
		"total_candidates": total,
		"succeeded":        succeeded,
		"failed":           total - succeeded,
		"duration_ms":      time.Since(start).Milliseconds(),
	})
	slog.InfoContext(ctx, "plan candidates generated",
		"succeeded", succeeded,
		"failed", total-succeeded,
		"duration_ms", time.Since(start).Milliseconds())

	if succeeded == 0 {
		failures := make([]string, 0, len(slots))
		for _, s := range slots {
			failures = append(failures, fmt.Sprintf("candidate %d (%s): %v", s.Index, s.Variance.Label(), s.Err))
		}
		if total == 0 {
			failures = append(failures, "no variances requested")
		}
		err := &NoViableCandidatesError{Failures: failures}
		span.RecordError(err)
		return slots, err
	}
	return slots, nil
}

func (g *Generator) generateOne(ctx context.Context, goal string, pctx discovery.PlanContext, idx int, v discovery.Variance) (*Candidate, error) {
	current := v
	specs, err := discovery.Retry(ctx, g.cfg.Retry, "discover", func(ctx context.Context, attempt int) ([]artifact.Spec, error) {
		specs, err := g.provider.Discover(ctx, goal, pctx, current)
		if err == nil && len(specs) == 0 {
			err = discovery.ErrEmptyDiscovery
		}
		if errors.Is(err, discovery.ErrEmptyDiscovery) {
			current = v.WithHint(emptyDiscoveryHint)
		}
		return specs, err
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}

	label := v.Label()
	for i := range specs {
		specs[i] = specs[i].WithMetadata("variance", label)
	}

	graph, err := artifact.NewGraph(ctx, specs)
	if err != nil {
		return nil, fmt.Errorf("resolution: %w", err)
	}
	if err := artifact.CheckLimits(graph, artifact.Limits{MaxDepth: g.cfg.MaxDepth}); err != nil {
		return nil, err
	}

	return &Candidate{Index: idx, Variance: v, Graph: graph}, nil
}
