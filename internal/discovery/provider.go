// Package discovery adapts the external generation capability to the
// planner and the engine. Calls are retryable and timeout bounded; the
// capability itself is consumed only through the interfaces below.
package discovery

import (
	"context"

	"basegraph.app/harmony/internal/artifact"
)

// PlanContext is the caller-supplied background for initial discovery.
type PlanContext struct {
	Summary     string
	Constraints []string
	Existing    []artifact.Spec
}

// GraphContext is what materialization sees of the rest of the graph.
type GraphContext struct {
	Goal         string
	Dependencies map[string]string // requirement id -> materialized content
	Tier         artifact.ModelTier
	Feedback     string // verifier reason and gaps from the previous attempt
	Attempt      int
}

// Verification is the verdict on one materialized artifact.
type Verification struct {
	Passed     bool     `json:"passed" jsonschema_description:"Whether the content satisfies the contract"`
	Reason     string   `json:"reason" jsonschema_description:"One sentence explaining the verdict"`
	Gaps       []string `json:"gaps" jsonschema_description:"Contract requirements the content does not meet"`
	Confidence float64  `json:"confidence" jsonschema_description:"Confidence in the verdict, 0.0-1.0"`
}

// Provider proposes artifact specs and fills in artifact content.
// Every method must be safe to retry.
type Provider interface {
	Discover(ctx context.Context, goal string, pctx PlanContext, v Variance) ([]artifact.Spec, error)
	RefineOne(ctx context.Context, goal string, g *artifact.Graph, w Weakness) ([]artifact.Spec, error)
	Materialize(ctx context.Context, spec artifact.Spec, gctx GraphContext) (string, error)
}

// Verifier checks content against an artifact contract.
type Verifier interface {
	Verify(ctx context.Context, content, contract string) (Verification, error)
}

// ExpansionRequest describes the graph state at a wave boundary.
type ExpansionRequest struct {
	Goal        string
	Graph       *artifact.Graph
	Completed   []string
	JustCreated []artifact.Spec
}

// Expander is implemented by providers that can grow a graph during
// execution. It returns only specs that should be added.
type Expander interface {
	DiscoverNew(ctx context.Context, req ExpansionRequest) ([]artifact.Spec, error)
}
