// Package engine executes an artifact graph wave by wave.
//
// Each wave is every pending artifact whose requirements have succeeded in
// the current snapshot. Artifacts in a wave run concurrently under a fixed
// budget; the wave completes before the next one is computed. Between waves
// the graph may grow through the provider's expansion capability.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"basegraph.app/harmony/common/logger"
	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/discovery"
	"basegraph.app/harmony/internal/events"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Concurrency        int
	VerifyAttempts     int
	Retry              discovery.RetryPolicy
	Verify             bool
	DynamicExpansion   bool
	MaxArtifacts       int
	MaxDiscoveryRounds int
	ExecutionTimeout   time.Duration
	AllowExplosion     bool
}

type Engine struct {
	provider discovery.Provider
	verifier discovery.Verifier
	expander discovery.Expander
	cfg      Config
}

// New builds an engine. verifier may be nil, in which case artifacts succeed
// unverified. Expansion is available when provider implements
// discovery.Expander.
func New(provider discovery.Provider, verifier discovery.Verifier, cfg Config) *Engine {
	cfg.Concurrency = max(cfg.Concurrency, 1)
	cfg.VerifyAttempts = max(cfg.VerifyAttempts, 1)

	e := &Engine{provider: provider, verifier: verifier, cfg: cfg}
	if x, ok := provider.(discovery.Expander); ok {
		e.expander = x
	}
	return e
}

// Run executes g for goal. Artifact failures are reported in the result, not
// as an error. The error is non-nil for a graph explosion, a timeout or a
// cancelled ctx; the result then holds the partial state.
func (e *Engine) Run(ctx context.Context, goal string, g *artifact.Graph, em *events.Emitter) (*Result, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "harmony.engine"})
	span := logger.StartSpan(ctx, "engine.run", attribute.Int("artifact_count", g.Len()))
	defer span.End()
	ctx = span.Context()

	if err := e.checkExplosion(g); err != nil {
		slog.ErrorContext(ctx, "refusing to execute oversized graph",
			"artifact_count", g.Len(),
			"max_artifacts", e.cfg.MaxArtifacts)
		em.Emit(ctx, events.ExecutionAborted, events.Fields{
			"reason":         err.Error(),
			"artifact_count": g.Len(),
			"limit":          e.cfg.MaxArtifacts,
		})
		span.RecordError(err)
		return nil, err
	}

	runCtx := ctx
	if e.cfg.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.ExecutionTimeout)
		defer cancel()
	}

	start := time.Now()
	r := &run{
		engine: e,
		goal:   goal,
		book:   newStateBook(g),
		em:     em,
		result: &Result{ModelDistribution: make(map[artifact.ModelTier]int)},
	}

	slog.InfoContext(ctx, "execution started",
		"artifact_count", g.Len(),
		"concurrency", e.cfg.Concurrency,
		"dynamic_expansion", e.cfg.DynamicExpansion && e.expander != nil)

	err := r.loop(runCtx)
	if err == nil && runCtx.Err() != nil {
		err = runCtx.Err()
	}
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = &ExecutionTimeoutError{Timeout: e.cfg.ExecutionTimeout}
	}
	if err != nil && !errors.Is(err, artifact.ErrGraphExplosion) {
		for _, id := range r.book.failRunning(err) {
			slog.WarnContext(ctx, "in-flight artifact failed on abort", "artifact_id", id, "error", err)
			em.Emit(ctx, events.ArtifactFailed, events.Fields{
				"artifact_id": id,
				"reason":      err.Error(),
			})
		}
	}

	res := r.finish(time.Since(start))
	fields := events.Fields{
		"succeeded":         len(res.Succeeded()),
		"failed":            len(res.Failed()),
		"blocked":           len(res.Blocked()),
		"pending":           len(res.Pending()),
		"success_rate":      res.SuccessRate(),
		"verification_rate": res.VerificationRate(),
		"waves":             len(res.Waves),
		"discovery_rounds":  res.ExpansionRounds,
		"duration_ms":       res.Duration.Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		span.RecordError(err)
	}
	em.Emit(ctx, events.ExecutionComplete, fields)

	slog.InfoContext(ctx, "execution finished",
		"succeeded", len(res.Succeeded()),
		"failed", len(res.Failed()),
		"blocked", len(res.Blocked()),
		"pending", len(res.Pending()),
		"waves", len(res.Waves),
		"duration_ms", res.Duration.Milliseconds(),
		"error", err)

	return res, err
}

func (e *Engine) checkExplosion(g *artifact.Graph) error {
	if e.cfg.AllowExplosion {
		return nil
	}
	return artifact.CheckLimits(g, artifact.Limits{MaxArtifacts: e.cfg.MaxArtifacts})
}

// run is the state of one Run call.
type run struct {
	engine *Engine
	goal   string
	book   *stateBook
	em     *events.Emitter
	result *Result
	rounds int
}

func (r *run) loop(ctx context.Context) error {
	for wave := 0; ; wave++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		ids := r.book.next()
		if len(ids) == 0 {
			return nil
		}

		created, err := r.runWave(ctx, wave, ids)
		if err != nil {
			return err
		}

		if err := r.expand(ctx, created); err != nil {
			return err
		}
	}
}

// runWave executes ids with bounded concurrency and returns the specs that
// succeeded.
func (r *run) runWave(ctx context.Context, wave int, ids []string) ([]artifact.Spec, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Wave: &wave})
	span := logger.StartSpan(ctx, "engine.wave",
		attribute.Int("wave", wave),
		attribute.Int("artifact_count", len(ids)))
	defer span.End()
	ctx = span.Context()

	start := time.Now()
	g := r.book.snapshot()
	r.result.Waves = append(r.result.Waves, ids)

	slog.InfoContext(ctx, "wave started", "artifact_count", len(ids))
	r.em.Emit(ctx, events.WaveStart, events.Fields{
		"wave":           wave,
		"artifact_count": len(ids),
		"artifacts":      strings.Join(ids, ","),
	})

	outcomes := make([]bool, len(ids))
	started := make([]artifact.ModelTier, len(ids))
	var eg errgroup.Group
	eg.SetLimit(r.engine.cfg.Concurrency)
	for i, id := range ids {
		if ctx.Err() != nil {
			r.book.release(ids[i:])
			break
		}
		tier := artifact.SelectModelTier(g, id)
		// Go blocks until a worker is free; the artifact only starts once
		// it holds one.
		eg.Go(func() error {
			if ctx.Err() != nil {
				r.book.release([]string{id})
				return nil
			}
			if !r.book.start(id, tier) {
				return nil
			}
			started[i] = tier
			outcomes[i] = r.execute(ctx, g, wave, id, tier)
			return nil
		})
	}
	_ = eg.Wait()

	var created []artifact.Spec
	failed := 0
	for i, tier := range started {
		if tier == "" {
			continue
		}
		r.result.ModelDistribution[tier]++
		if !outcomes[i] {
			failed++
			continue
		}
		s, _ := g.Get(ids[i])
		created = append(created, s)
	}

	slog.InfoContext(ctx, "wave completed",
		"succeeded", len(created),
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds())
	r.em.Emit(ctx, events.WaveComplete, events.Fields{
		"wave":        wave,
		"succeeded":   len(created),
		"failed":      failed,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return created, ctx.Err()
}

// execute runs one artifact and records its outcome. An artifact whose call
// was cut short by the run context stays running so the abort path can fail
// it with the run's error.
func (r *run) execute(ctx context.Context, g *artifact.Graph, wave int, id string, tier artifact.ModelTier) bool {
	ctx = logger.WithLogFields(ctx, logger.LogFields{ArtifactID: &id})
	span := logger.StartSpan(ctx, "engine.artifact",
		attribute.String("artifact_id", id),
		attribute.String("tier", string(tier)))
	defer span.End()
	ctx = span.Context()

	r.em.Emit(ctx, events.ArtifactStarted, events.Fields{
		"artifact_id": id,
		"wave":        wave,
		"tier":        string(tier),
	})

	spec, _ := g.Get(id)
	res := r.engine.materialize(ctx, r.goal, spec, tier, r.book.dependencies(id))

	if res.Err != nil {
		if ctx.Err() != nil {
			span.RecordError(ctx.Err())
			return false
		}
		span.RecordError(res.Err)
		blocked := r.book.fail(id, res)
		slog.WarnContext(ctx, "artifact failed",
			"attempts", res.Attempts,
			"blocked_count", len(blocked),
			"error", res.Err)
		r.em.Emit(ctx, events.ArtifactFailed, events.Fields{
			"artifact_id":   id,
			"wave":          wave,
			"attempts":      res.Attempts,
			"reason":        res.Err.Error(),
			"blocked_count": len(blocked),
		})
		for _, b := range blocked {
			r.em.Emit(ctx, events.ArtifactBlocked, events.Fields{
				"artifact_id": b,
				"blocked_by":  id,
			})
		}
		return false
	}

	r.book.succeed(id, res)
	slog.InfoContext(ctx, "artifact succeeded",
		"attempts", res.Attempts,
		"verified", res.Verified,
		"duration_ms", res.Duration.Milliseconds())
	r.em.Emit(ctx, events.ArtifactSucceeded, events.Fields{
		"artifact_id":    id,
		"wave":           wave,
		"tier":           string(tier),
		"attempts":       res.Attempts,
		"verified":       res.Verified,
		"content_length": len(res.Content),
		"duration_ms":    res.Duration.Milliseconds(),
	})
	return true
}

func (r *run) finish(d time.Duration) *Result {
	res := r.result
	res.Graph = r.book.snapshot()
	res.Statuses = r.book.statuses()
	res.Results, res.BlockedBy = r.book.outcomes()
	res.ExpansionRounds = r.rounds
	res.Duration = d
	return res
}
