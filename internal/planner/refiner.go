package planner

import (
	"context"
	"fmt"
	"log/slog"

	"basegraph.app/harmony/common/logger"
	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/discovery"
	"basegraph.app/harmony/internal/events"
)

// Thresholds decide when a metric counts as a weakness.
type Thresholds struct {
	MinParallelism float64
	MaxBalance     float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{MinParallelism: 0.5, MaxBalance: 2.0}
}

// IdentifyWeakness returns the single weakest metric of m. Parallelism is
// checked first, then balance, then file conflicts.
func IdentifyWeakness(m Metrics, t Thresholds) (discovery.Weakness, bool) {
	switch {
	case m.ArtifactCount > 1 && m.ParallelismFactor < t.MinParallelism:
		return discovery.Weakness{
			Kind:   discovery.WeaknessParallelism,
			Value:  m.ParallelismFactor,
			Target: t.MinParallelism,
			Description: fmt.Sprintf(
				"Parallelism is %.2f (target %.2f): %d artifacts need %d sequential waves and the critical path is %d deep. "+
					"Add independent leaf artifacts and drop requirements that are not real build dependencies.",
				m.ParallelismFactor, t.MinParallelism, m.ArtifactCount, m.EstimatedWaves, m.Depth),
		}, true
	case m.BalanceFactor > t.MaxBalance:
		return discovery.Weakness{
			Kind:   discovery.WeaknessBalance,
			Value:  m.BalanceFactor,
			Target: t.MaxBalance,
			Description: fmt.Sprintf(
				"Wave balance is %.2f (target at most %.2f): one wave of %d artifacts is a bottleneck. "+
					"Spread work so waves are closer in size.",
				m.BalanceFactor, t.MaxBalance, m.Width),
		}, true
	case m.FileConflicts > 0:
		return discovery.Weakness{
			Kind:   discovery.WeaknessConflicts,
			Value:  float64(m.FileConflicts),
			Target: 0,
			Description: fmt.Sprintf(
				"%d artifacts produce a location another artifact already produces. Give every artifact its own location.",
				m.FileConflicts),
		}, true
	default:
		return discovery.Weakness{}, false
	}
}

// RefinementRound records one refinement attempt.
type RefinementRound struct {
	Round       int                `json:"round"`
	ScoreBefore float64            `json:"score_before"`
	Weakness    discovery.Weakness `json:"weakness"`
	ScoreAfter  *float64           `json:"score_after,omitempty"` // nil when no graph was produced
	Accepted    bool               `json:"accepted"`
	Reason      string             `json:"reason,omitempty"`
}

type RefinerConfig struct {
	Thresholds Thresholds
	Retry      discovery.RetryPolicy
	MaxDepth   int
}

// Refiner improves a graph one weakness at a time, keeping a result only
// when it strictly raises the score.
type Refiner struct {
	provider discovery.Provider
	scorer   *Scorer
	cfg      RefinerConfig
}

func NewRefiner(provider discovery.Provider, scorer *Scorer, cfg RefinerConfig) *Refiner {
	return &Refiner{provider: provider, scorer: scorer, cfg: cfg}
}

// Refine runs up to maxRounds rounds and stops at the first round that does
// not improve. The returned score is never below m.Score.
func (r *Refiner) Refine(ctx context.Context, goal string, g *artifact.Graph, m Metrics, maxRounds int, em *events.Emitter) (*artifact.Graph, Metrics, []RefinementRound) {
	if maxRounds <= 0 {
		return g, m, nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "harmony.planner.refiner"})
	span := logger.StartSpan(ctx, "planner.refine")
	defer span.End()
	ctx = span.Context()

	initial := m.Score
	var rounds []RefinementRound

	for round := 1; round <= maxRounds; round++ {
		weakness, ok := IdentifyWeakness(m, r.cfg.Thresholds)
		if !ok {
			slog.DebugContext(ctx, "no weakness left to refine", "round", round)
			break
		}

		em.Emit(ctx, events.PlanRefineStart, events.Fields{
			"round":         round,
			"total_rounds":  maxRounds,
			"current_score": m.Score,
			"weakness":      string(weakness.Kind),
			"improvement":   weakness.Description,
		})

		rec := RefinementRound{Round: round, ScoreBefore: m.Score, Weakness: weakness}
		refined, err := r.regenerate(ctx, goal, g, weakness)
		if err != nil {
			rec.Reason = err.Error()
			rounds = append(rounds, rec)
			slog.WarnContext(ctx, "refinement round failed",
				"round", round,
				"weakness", weakness.Kind,
				"error", err)
			em.Emit(ctx, events.PlanRefineComplete, events.Fields{
				"round":    round,
				"improved": false,
				"reason":   rec.Reason,
			})
			break
		}

		next := r.scorer.Score(refined)
		rec.ScoreAfter = &next.Score
		em.Emit(ctx, events.PlanRefineAttempt, events.Fields{
			"round":          round,
			"weakness":       string(weakness.Kind),
			"artifact_count": refined.Len(),
			"new_score":      next.Score,
		})

		if next.Score <= m.Score {
			rec.Reason = "score did not improve"
			rounds = append(rounds, rec)
			em.Emit(ctx, events.PlanRefineComplete, events.Fields{
				"round":     round,
				"improved":  false,
				"old_score": m.Score,
				"new_score": next.Score,
				"reason":    rec.Reason,
			})
			break
		}

		rec.Accepted = true
		rounds = append(rounds, rec)
		em.Emit(ctx, events.PlanRefineComplete, events.Fields{
			"round":       round,
			"improved":    true,
			"old_score":   m.Score,
			"new_score":   next.Score,
			"improvement": next.Score - m.Score,
		})
		slog.InfoContext(ctx, "refinement accepted",
			"round", round,
			"weakness", weakness.Kind,
			"old_score", m.Score,
			"new_score", next.Score)
		g, m = refined, next
	}

	em.Emit(ctx, events.PlanRefineFinal, events.Fields{
		"total_rounds":      len(rounds),
		"initial_score":     initial,
		"final_score":       m.Score,
		"total_improvement": m.Score - initial,
	})
	return g, m, rounds
}

func (r *Refiner) regenerate(ctx context.Context, goal string, g *artifact.Graph, w discovery.Weakness) (*artifact.Graph, error) {
	specs, err := discovery.Retry(ctx, r.cfg.Retry, "refine", func(ctx context.Context, attempt int) ([]artifact.Spec, error) {
		specs, err := r.provider.RefineOne(ctx, goal, g, w)
		if err == nil && len(specs) == 0 {
			err = discovery.ErrEmptyDiscovery
		}
		return specs, err
	})
	if err != nil {
		return nil, fmt.Errorf("regenerate: %w", err)
	}

	for i := range specs {
		specs[i] = specs[i].WithMetadata("refined_for", string(w.Kind))
	}
	refined, err := artifact.NewGraph(ctx, specs)
	if err != nil {
		return nil, fmt.Errorf("resolve refined graph: %w", err)
	}
	if err := artifact.CheckLimits(refined, artifact.Limits{MaxDepth: r.cfg.MaxDepth}); err != nil {
		return nil, err
	}
	return refined, nil
}
