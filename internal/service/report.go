package service

import (
	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/engine"
	"basegraph.app/harmony/internal/model"
	"basegraph.app/harmony/internal/planner"
)

// RunReport is what a run returns and what is persisted with it.
type RunReport struct {
	RunID      int64              `json:"run_id"`
	Goal       string             `json:"goal"`
	Status     model.RunStatus    `json:"status"`
	Attempt    int32              `json:"attempt"`
	Error      string             `json:"error,omitempty"`
	Retryable  bool               `json:"retryable,omitempty"`
	Plan       *PlanReport        `json:"plan,omitempty"`
	Execution  *ExecutionReport   `json:"execution,omitempty"`
	Contents   []model.ContentRef `json:"contents,omitempty"`
	DurationMS int64              `json:"duration_ms"`
}

type PlanReport struct {
	Winner           int                        `json:"winner"`
	Variance         string                     `json:"variance"`
	Metrics          planner.Metrics            `json:"metrics"`
	InitialScore     float64                    `json:"initial_score"`
	ScoreImprovement float64                    `json:"score_improvement"`
	Waves            [][]string                 `json:"waves"`
	Orphans          []string                   `json:"orphans,omitempty"`
	Candidates       []planner.CandidateSummary `json:"candidates"`
	Rounds           []planner.RefinementRound  `json:"refinement_rounds,omitempty"`
	Document         artifact.Document          `json:"graph"`
	Mermaid          string                     `json:"mermaid"`
}

type ExecutionReport struct {
	Succeeded         []string                   `json:"succeeded"`
	Failed            map[string]string          `json:"failed,omitempty"`
	Blocked           []string                   `json:"blocked,omitempty"`
	Pending           []string                   `json:"pending,omitempty"`
	SuccessRate       float64                    `json:"success_rate"`
	VerificationRate  float64                    `json:"verification_rate"`
	Waves             [][]string                 `json:"waves"`
	Discovered        []string                   `json:"discovered,omitempty"`
	Rejected          []engine.Rejection         `json:"rejected,omitempty"`
	ModelDistribution map[artifact.ModelTier]int `json:"model_distribution"`
	DurationMS        int64                      `json:"duration_ms"`
}

func newPlanReport(p *planner.Plan) *PlanReport {
	return &PlanReport{
		Winner:           p.Winner.Index,
		Variance:         p.Winner.Variance.Label(),
		Metrics:          p.Metrics,
		InitialScore:     p.Initial.Score,
		ScoreImprovement: p.Improvement(),
		Waves:            p.Graph.Waves(),
		Orphans:          p.Graph.Orphans(),
		Candidates:       p.Summaries,
		Rounds:           p.Rounds,
		Document:         p.Graph.Document(),
		Mermaid:          p.Graph.Mermaid(),
	}
}

func newExecutionReport(r *engine.Result) *ExecutionReport {
	reasons := r.Failures()
	failed := make(map[string]string)
	for _, id := range r.Failed() {
		failed[id] = reasons[id]
	}
	return &ExecutionReport{
		Succeeded:         r.Succeeded(),
		Failed:            failed,
		Blocked:           r.Blocked(),
		Pending:           r.Pending(),
		SuccessRate:       r.SuccessRate(),
		VerificationRate:  r.VerificationRate(),
		Waves:             r.Waves,
		Discovered:        r.Discovered,
		Rejected:          r.Rejected,
		ModelDistribution: r.ModelDistribution,
		DurationMS:        r.Duration.Milliseconds(),
	}
}
