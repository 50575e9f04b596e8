package engine

import (
	"slices"
	"time"

	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/discovery"
)

// ArtifactResult is the outcome of one artifact execution.
type ArtifactResult struct {
	Content      string                  `json:"content,omitempty"`
	Verified     bool                    `json:"verified"`
	Verification *discovery.Verification `json:"verification,omitempty"`
	Tier         artifact.ModelTier      `json:"tier"`
	Attempts     int                     `json:"attempts"`
	Duration     time.Duration           `json:"duration"`
	Err          error                   `json:"-"`
}

// Rejection is an expansion round whose specs could not be merged.
type Rejection struct {
	Round  int      `json:"round"`
	IDs    []string `json:"ids"`
	Reason string   `json:"reason"`
}

// Result is the final state of a run. Every artifact of the final graph has
// a status; artifacts never attempted are pending.
type Result struct {
	Graph             *artifact.Graph
	Statuses          map[string]Status
	Results           map[string]ArtifactResult
	BlockedBy         map[string]string
	Waves             [][]string
	Discovered        []string
	Rejected          []Rejection
	ExpansionRounds   int
	Duration          time.Duration
	ModelDistribution map[artifact.ModelTier]int
}

func (r *Result) withStatus(st Status) []string {
	var ids []string
	for id, s := range r.Statuses {
		if s == st {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (r *Result) Succeeded() []string { return r.withStatus(StatusSucceeded) }
func (r *Result) Failed() []string    { return r.withStatus(StatusFailed) }
func (r *Result) Blocked() []string   { return r.withStatus(StatusBlocked) }
func (r *Result) Pending() []string   { return r.withStatus(StatusPending) }

// SuccessRate is the share of all artifacts that succeeded.
func (r *Result) SuccessRate() float64 {
	if len(r.Statuses) == 0 {
		return 0
	}
	return float64(len(r.Succeeded())) / float64(len(r.Statuses))
}

// VerificationRate is the share of succeeded artifacts that passed the verifier.
func (r *Result) VerificationRate() float64 {
	succeeded := r.Succeeded()
	if len(succeeded) == 0 {
		return 0
	}
	verified := 0
	for _, id := range succeeded {
		if r.Results[id].Verified {
			verified++
		}
	}
	return float64(verified) / float64(len(succeeded))
}

// Failures maps each failed or blocked artifact to a readable reason.
func (r *Result) Failures() map[string]string {
	out := make(map[string]string)
	for _, id := range r.Failed() {
		reason := "failed"
		if err := r.Results[id].Err; err != nil {
			reason = err.Error()
		}
		out[id] = reason
	}
	for _, id := range r.Blocked() {
		out[id] = "blocked by failed dependency " + r.BlockedBy[id]
	}
	return out
}

// Content returns the materialized content of a succeeded artifact.
func (r *Result) Content(id string) (string, bool) {
	if r.Statuses[id] != StatusSucceeded {
		return "", false
	}
	return r.Results[id].Content, true
}
