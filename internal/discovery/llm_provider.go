package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"basegraph.app/harmony/common/llm"
	"basegraph.app/harmony/common/logger"
	"basegraph.app/harmony/internal/artifact"
)

// SpecItem is the structured form in which the model proposes an artifact.
type SpecItem struct {
	ID               string   `json:"id" jsonschema_description:"Unique identifier, PascalCase or snake_case"`
	Description      string   `json:"description" jsonschema_description:"What the artifact is for"`
	Contract         string   `json:"contract" jsonschema_description:"Properties the finished artifact must satisfy"`
	DomainType       string   `json:"domain_type" jsonschema_description:"protocol, interface, schema, implementation, component, or another short tag"`
	Requires         []string `json:"requires" jsonschema_description:"Ids of artifacts that must exist before this one can be built"`
	ProducesLocation string   `json:"produces_location" jsonschema_description:"File or location the artifact materializes to, empty if none"`
}

type SpecListResponse struct {
	Artifacts []SpecItem `json:"artifacts" jsonschema_description:"Artifacts needed for the goal"`
}

type MaterializeResponse struct {
	Content string `json:"content" jsonschema_description:"The complete artifact content"`
}

var (
	specListSchema    = llm.GenerateSchema[SpecListResponse]()
	materializeSchema = llm.GenerateSchema[MaterializeResponse]()
)

// TieredClients routes materialization by model tier. Nil tiers use Default.
type TieredClients struct {
	Default llm.Client
	Small   llm.Client
	Medium  llm.Client
	Large   llm.Client
}

func (t TieredClients) For(tier artifact.ModelTier) llm.Client {
	var c llm.Client
	switch tier {
	case artifact.TierSmall:
		c = t.Small
	case artifact.TierMedium:
		c = t.Medium
	case artifact.TierLarge:
		c = t.Large
	}
	if c == nil {
		return t.Default
	}
	return c
}

// LLMProvider implements Provider and Expander on structured-output chat.
type LLMProvider struct {
	discovery   llm.Client
	materialize TieredClients
	maxTokens   int
}

func NewLLMProvider(discovery llm.Client, materialize TieredClients) *LLMProvider {
	if materialize.Default == nil {
		materialize.Default = discovery
	}
	return &LLMProvider{discovery: discovery, materialize: materialize, maxTokens: 8192}
}

func (p *LLMProvider) Discover(ctx context.Context, goal string, pctx PlanContext, v Variance) ([]artifact.Spec, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "harmony.discovery.llm"})

	var b strings.Builder
	fmt.Fprintf(&b, "GOAL: %s\n", v.Apply(goal))
	writePlanContext(&b, pctx)

	specs, err := p.askSpecs(ctx, "artifact_discovery", discoverSystemPrompt, b.String(), v.Temperature)
	if err != nil {
		return nil, fmt.Errorf("discover artifacts: %w", err)
	}

	slog.DebugContext(ctx, "discovery completed",
		"variance", v.Label(),
		"artifact_count", len(specs))
	return specs, nil
}

func (p *LLMProvider) RefineOne(ctx context.Context, goal string, g *artifact.Graph, w Weakness) ([]artifact.Spec, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "harmony.discovery.llm"})

	var b strings.Builder
	fmt.Fprintf(&b, "GOAL: %s\n\nCURRENT PLAN:\n", goal)
	writeGraph(&b, g)
	fmt.Fprintf(&b, "\nWEAKNESS TO FIX:\n%s\n", w.String())
	b.WriteString("\nReturn the complete improved plan, not just the changes.")

	specs, err := p.askSpecs(ctx, "artifact_refinement", refineSystemPrompt, b.String(), llm.Temp(0.3))
	if err != nil {
		return nil, fmt.Errorf("refine plan: %w", err)
	}
	return specs, nil
}

func (p *LLMProvider) Materialize(ctx context.Context, spec artifact.Spec, gctx GraphContext) (string, error) {
	client := p.materialize.For(gctx.Tier)

	var b strings.Builder
	fmt.Fprintf(&b, "GOAL: %s\n\nARTIFACT: %s\nDESCRIPTION: %s\nCONTRACT: %s\n", gctx.Goal, spec.ID, spec.Description, spec.Contract)
	if spec.ProducesLocation != "" {
		fmt.Fprintf(&b, "LOCATION: %s\n", spec.ProducesLocation)
	}
	if len(gctx.Dependencies) > 0 {
		b.WriteString("\nDEPENDENCIES (already built):\n")
		ids := make([]string, 0, len(gctx.Dependencies))
		for id := range gctx.Dependencies {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			fmt.Fprintf(&b, "--- %s ---\n%s\n", id, logger.Truncate(gctx.Dependencies[id], 4000))
		}
	}
	if gctx.Feedback != "" {
		fmt.Fprintf(&b, "\nPREVIOUS ATTEMPT FAILED VERIFICATION:\n%s\nFix these problems.\n", gctx.Feedback)
	}

	var resp MaterializeResponse
	_, err := client.Chat(ctx, llm.Request{
		SystemPrompt: materializeSystemPrompt,
		UserPrompt:   b.String(),
		SchemaName:   "artifact_content",
		Schema:       materializeSchema,
		MaxTokens:    p.maxTokens,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("materialize %s: %w", spec.ID, err)
	}
	return resp.Content, nil
}

// DiscoverNew asks whether the artifacts just created revealed missing work.
func (p *LLMProvider) DiscoverNew(ctx context.Context, req ExpansionRequest) ([]artifact.Spec, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "GOAL: %s\n\nCOMPLETED ARTIFACTS:\n", req.Goal)
	for _, id := range req.Completed {
		fmt.Fprintf(&b, "- %s\n", id)
	}
	b.WriteString("\nJUST CREATED:\n")
	for _, s := range req.JustCreated {
		fmt.Fprintf(&b, "- %s: %s (contract: %s)\n", s.ID, s.Description, s.Contract)
	}
	if req.Graph != nil {
		b.WriteString("\nFULL PLAN:\n")
		writeGraph(&b, req.Graph)
	}

	specs, err := p.askSpecs(ctx, "artifact_expansion", expandSystemPrompt, b.String(), llm.Temp(0.3))
	if err != nil && !errors.Is(err, ErrEmptyDiscovery) {
		return nil, fmt.Errorf("discover new artifacts: %w", err)
	}

	var fresh []artifact.Spec
	for _, s := range specs {
		if req.Graph == nil || !req.Graph.Has(s.ID) {
			fresh = append(fresh, s)
		}
	}
	return fresh, nil
}

func (p *LLMProvider) askSpecs(ctx context.Context, schemaName, system, user string, temp *float64) ([]artifact.Spec, error) {
	var resp SpecListResponse
	_, err := p.discovery.Chat(ctx, llm.Request{
		SystemPrompt: system,
		UserPrompt:   user,
		SchemaName:   schemaName,
		Schema:       specListSchema,
		MaxTokens:    p.maxTokens,
		Temperature:  temp,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Artifacts) == 0 {
		return nil, ErrEmptyDiscovery
	}

	specs := make([]artifact.Spec, 0, len(resp.Artifacts))
	for _, item := range resp.Artifacts {
		specs = append(specs, item.toSpec())
	}
	return specs, nil
}

func (item SpecItem) toSpec() artifact.Spec {
	return artifact.Spec{
		ID:               strings.TrimSpace(item.ID),
		Description:      item.Description,
		Contract:         item.Contract,
		DomainType:       item.DomainType,
		Requires:         item.Requires,
		ProducesLocation: item.ProducesLocation,
	}
}

func writePlanContext(b *strings.Builder, pctx PlanContext) {
	if pctx.Summary != "" {
		fmt.Fprintf(b, "\nCONTEXT:\n%s\n", pctx.Summary)
	}
	if len(pctx.Constraints) > 0 {
		b.WriteString("\nCONSTRAINTS:\n")
		for _, c := range pctx.Constraints {
			fmt.Fprintf(b, "- %s\n", c)
		}
	}
	if len(pctx.Existing) > 0 {
		b.WriteString("\nALREADY EXISTS (may be required, do not redefine):\n")
		for _, s := range pctx.Existing {
			fmt.Fprintf(b, "- %s: %s\n", s.ID, s.Description)
		}
	}
}

func writeGraph(b *strings.Builder, g *artifact.Graph) {
	for _, s := range g.Specs() {
		fmt.Fprintf(b, "- %s", s.ID)
		if len(s.Requires) > 0 {
			fmt.Fprintf(b, " (requires: %s)", strings.Join(s.Requires, ", "))
		}
		if s.ProducesLocation != "" {
			fmt.Fprintf(b, " -> %s", s.ProducesLocation)
		}
		fmt.Fprintf(b, ": %s\n", s.Description)
	}
}

const discoverSystemPrompt = `You plan work as a graph of artifacts. An artifact is one discrete unit
(a file, an interface, a content unit) with a contract describing what it must satisfy.

Rules:
- Every id in requires must be the id of another artifact in your answer.
- No artifact may require itself, directly or through others.
- Exactly one artifact should depend on the key artifacts and represent the finished goal.
- Prefer independent artifacts: only add a requirement when one artifact really is built against another.
- Contracts must be concrete enough to verify.`

const refineSystemPrompt = `You improve artifact plans. You receive a plan and one structural weakness.
Return the whole plan with that weakness fixed, keeping every artifact the goal needs.
Keep ids stable where the artifact is unchanged. Every id in requires must exist in your answer.`

const expandSystemPrompt = `You check whether creating artifacts revealed missing work.
Only propose artifacts that are truly needed for the goal, not nice-to-haves.
New artifacts may require existing ones. Return an empty list when nothing is missing.`

const materializeSystemPrompt = `You build one artifact. Produce its complete content so that it satisfies the contract.
Build against the dependencies you are given; do not redefine them.`
