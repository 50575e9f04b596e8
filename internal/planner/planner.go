package planner

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"basegraph.app/harmony/common/logger"
	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/discovery"
	"basegraph.app/harmony/internal/events"
	"go.opentelemetry.io/otel/attribute"
)

type Config struct {
	Candidates       int
	Strategy         discovery.Strategy
	RefinementRounds int
	Weights          Weights
	Thresholds       Thresholds
	Retry            discovery.RetryPolicy
	MaxDepth         int
	Timeout          time.Duration
}

// Plan is the outcome of one harmonic planning call.
type Plan struct {
	Graph     *artifact.Graph
	Metrics   Metrics
	Initial   Metrics
	Winner    Candidate
	Rounds    []RefinementRound
	Summaries []CandidateSummary
}

// Improvement is how much refinement raised the winner's score.
func (p *Plan) Improvement() float64 {
	return p.Metrics.Score - p.Initial.Score
}

// CandidateSummary is one row of the candidate table.
type CandidateSummary struct {
	Index    int      `json:"index"`
	Variance string   `json:"variance"`
	Metrics  *Metrics `json:"metrics,omitempty"`
	Error    string   `json:"error,omitempty"`
	Selected bool     `json:"selected"`
}

// Planner composes generation, scoring, selection and refinement.
type Planner struct {
	generator *Generator
	scorer    *Scorer
	refiner   *Refiner
	cfg       Config
}

func New(provider discovery.Provider, cfg Config) *Planner {
	scorer := NewScorer(cfg.Weights)
	return &Planner{
		generator: NewGenerator(provider, GeneratorConfig{Retry: cfg.Retry, MaxDepth: cfg.MaxDepth}),
		scorer:    scorer,
		refiner:   NewRefiner(provider, scorer, RefinerConfig{Thresholds: cfg.Thresholds, Retry: cfg.Retry, MaxDepth: cfg.MaxDepth}),
		cfg:       cfg,
	}
}

func (p *Planner) Scorer() *Scorer {
	return p.scorer
}

// Plan generates candidates for goal, picks the best and refines it.
func (p *Planner) Plan(ctx context.Context, goal string, pctx discovery.PlanContext, em *events.Emitter) (*Plan, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "harmony.planner"})
	span := logger.StartSpan(ctx, "planner.plan")
	defer span.End()
	ctx = span.Context()

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	slog.InfoContext(ctx, "harmonic planning started",
		"goal", logger.Truncate(goal, 200),
		"candidates", p.cfg.Candidates,
		"strategy", p.cfg.Strategy)

	slots, err := p.generator.Generate(ctx, goal, pctx, discovery.Variances(p.cfg.Strategy, p.cfg.Candidates), em)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = &discovery.TimeoutError{Op: "planning", Timeout: p.cfg.Timeout}
		}
		span.RecordError(err)
		return nil, err
	}

	var cands []Candidate
	for _, s := range slots {
		if s.Candidate == nil {
			continue
		}
		s.Candidate.Metrics = p.scorer.Score(s.Candidate.Graph)
		cands = append(cands, *s.Candidate)
	}
	for i, c := range cands {
		fields := events.Fields{
			"candidate_index":  c.Index,
			"progress":         i + 1,
			"total_candidates": len(cands),
		}
		maps.Copy(fields, c.Metrics.Fields())
		em.Emit(ctx, events.PlanCandidateScored, fields)
	}
	em.Emit(ctx, events.PlanScoringComplete, events.Fields{"total_scored": len(cands)})

	winner := cands[Select(cands)]
	initial := winner.Metrics
	graph, metrics, rounds := p.refiner.Refine(ctx, goal, winner.Graph, winner.Metrics, p.cfg.RefinementRounds, em)

	plan := &Plan{
		Graph:     graph,
		Metrics:   metrics,
		Initial:   initial,
		Winner:    winner,
		Rounds:    rounds,
		Summaries: summarize(slots, winner.Index),
	}

	rationale := Rationale(metrics, p.scorer.Weights(), len(cands))
	fields := events.Fields{
		"selected_candidate":      winner.Index,
		"total_candidates":        len(slots),
		"viable_candidates":       len(cands),
		"variance":                winner.Variance.Label(),
		"variance_strategy":       string(p.cfg.Strategy),
		"selection_reason":        rationale,
		"refinement_rounds":       len(rounds),
		"final_score_improvement": plan.Improvement(),
	}
	maps.Copy(fields, metrics.Fields())
	em.Emit(ctx, events.PlanWinner, fields)
	span.SetAttributes(
		attribute.Int("winner", winner.Index),
		attribute.Float64("score", metrics.Score),
		attribute.Int("artifact_count", graph.Len()))

	slog.InfoContext(ctx, "harmonic planning completed",
		"winner", winner.Index,
		"score", metrics.Score,
		"artifact_count", graph.Len(),
		"refinement_rounds", len(rounds),
		"rationale", rationale,
		"duration_ms", time.Since(start).Milliseconds())

	return plan, nil
}

func summarize(slots []Slot, winner int) []CandidateSummary {
	out := make([]CandidateSummary, 0, len(slots))
	for _, s := range slots {
		row := CandidateSummary{Index: s.Index, Variance: s.Variance.Label(), Selected: s.Index == winner}
		if s.Candidate != nil {
			m := s.Candidate.Metrics
			row.Metrics = &m
		}
		if s.Err != nil {
			row.Error = s.Err.Error()
		}
		out = append(out, row)
	}
	return out
}
