package engine

import (
	"context"
	"log/slog"

	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/discovery"
	"basegraph.app/harmony/internal/events"
)

// expand asks the provider whether the artifacts just created call for new
// ones. A merge that breaks the graph is rejected and logged; growing past
// MaxArtifacts aborts the run unless explosions are allowed.
func (r *run) expand(ctx context.Context, created []artifact.Spec) error {
	cfg := r.engine.cfg
	if !cfg.DynamicExpansion || r.engine.expander == nil || len(created) == 0 {
		return nil
	}
	if r.rounds >= cfg.MaxDiscoveryRounds {
		return nil
	}
	r.rounds++
	round := r.rounds

	g := r.book.snapshot()
	statuses := r.book.statuses()
	var completed []string
	for _, id := range g.IDs() {
		if statuses[id] == StatusSucceeded {
			completed = append(completed, id)
		}
	}

	specs, err := discovery.Retry(ctx, cfg.Retry, "discover_new", func(ctx context.Context, _ int) ([]artifact.Spec, error) {
		return r.engine.expander.DiscoverNew(ctx, discovery.ExpansionRequest{
			Goal:        r.goal,
			Graph:       g,
			Completed:   completed,
			JustCreated: created,
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.WarnContext(ctx, "expansion round failed", "round", round, "error", err)
		r.em.Emit(ctx, events.ExpansionRound, events.Fields{
			"round":         round,
			"new_artifacts": 0,
			"error":         err.Error(),
		})
		return nil
	}

	ids := make([]string, 0, len(specs))
	for _, s := range specs {
		if !g.Has(s.ID) {
			ids = append(ids, s.ID)
		}
	}
	if len(ids) == 0 {
		slog.DebugContext(ctx, "expansion found nothing new", "round", round)
		r.em.Emit(ctx, events.ExpansionRound, events.Fields{
			"round":          round,
			"new_artifacts":  0,
			"artifact_count": g.Len(),
		})
		return nil
	}

	grown, err := g.With(ctx, specs...)
	if err != nil {
		slog.WarnContext(ctx, "expansion rejected",
			"round", round,
			"proposed", ids,
			"error", err)
		r.result.Rejected = append(r.result.Rejected, Rejection{Round: round, IDs: ids, Reason: err.Error()})
		r.em.Emit(ctx, events.ExpansionRejected, events.Fields{
			"round":          round,
			"proposed":       len(ids),
			"reason":         err.Error(),
			"artifact_count": g.Len(),
		})
		return nil
	}

	if err := r.engine.checkExplosion(grown); err != nil {
		slog.ErrorContext(ctx, "expansion exceeded artifact limit",
			"round", round,
			"artifact_count", grown.Len(),
			"max_artifacts", cfg.MaxArtifacts)
		r.em.Emit(ctx, events.ExecutionAborted, events.Fields{
			"reason":         err.Error(),
			"round":          round,
			"artifact_count": grown.Len(),
			"limit":          cfg.MaxArtifacts,
		})
		return err
	}

	blocked := r.book.grow(grown)
	r.result.Discovered = append(r.result.Discovered, ids...)
	for id, by := range blocked {
		r.em.Emit(ctx, events.ArtifactBlocked, events.Fields{
			"artifact_id": id,
			"blocked_by":  by,
		})
	}

	slog.InfoContext(ctx, "graph expanded",
		"round", round,
		"new_artifacts", len(ids),
		"artifact_count", grown.Len())
	r.em.Emit(ctx, events.ExpansionRound, events.Fields{
		"round":          round,
		"new_artifacts":  len(ids),
		"artifact_count": grown.Len(),
		"blocked":        len(blocked),
	})
	return nil
}
