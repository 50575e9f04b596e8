// Package events carries progress notifications out of planning and
// execution. Sinks observe; they never influence control flow.
package events

import (
	"context"
	"time"
)

type Type string

const (
	PlanCandidatesStart    Type = "plan_candidates_start"
	PlanCandidateGenerated Type = "plan_candidate_generated"
	PlanCandidatesComplete Type = "plan_candidates_complete"
	PlanCandidateScored    Type = "plan_candidate_scored"
	PlanScoringComplete    Type = "plan_scoring_complete"
	PlanWinner             Type = "plan_winner"
	PlanRefineStart        Type = "plan_refine_start"
	PlanRefineAttempt      Type = "plan_refine_attempt"
	PlanRefineComplete     Type = "plan_refine_complete"
	PlanRefineFinal        Type = "plan_refine_final"

	WaveStart         Type = "wave_start"
	WaveComplete      Type = "wave_complete"
	ArtifactStarted   Type = "artifact_started"
	ArtifactSucceeded Type = "artifact_succeeded"
	ArtifactFailed    Type = "artifact_failed"
	ArtifactBlocked   Type = "artifact_blocked"
	ExpansionRound    Type = "expansion_round"
	ExecutionComplete Type = "execution_complete"
	ExpansionRejected Type = "expansion_rejected"
	ExecutionAborted  Type = "execution_aborted"

	RunFinished Type = "run_finished"
)

// Fields is a flat record of primitive values. Consumers must tolerate
// fields they do not know.
type Fields map[string]any

type Event struct {
	Type   Type      `json:"type"`
	Time   time.Time `json:"time"`
	RunID  int64     `json:"run_id,omitempty"`
	Fields Fields    `json:"fields,omitempty"`
}

type Sink interface {
	Emit(ctx context.Context, e Event) error
}

type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Emit(ctx context.Context, e Event) error {
	return f(ctx, e)
}
