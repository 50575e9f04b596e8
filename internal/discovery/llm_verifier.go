package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"basegraph.app/harmony/common/llm"
	"basegraph.app/harmony/common/logger"
)

var verificationSchema = llm.GenerateSchema[Verification]()

// LLMVerifier asks a model whether content meets its contract.
type LLMVerifier struct {
	client llm.Client
	// minConfidence demotes low-confidence passes to failures. Zero accepts any pass.
	minConfidence float64
}

func NewLLMVerifier(client llm.Client, minConfidence float64) *LLMVerifier {
	return &LLMVerifier{client: client, minConfidence: minConfidence}
}

func (v *LLMVerifier) Verify(ctx context.Context, content, contract string) (Verification, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "harmony.discovery.verifier"})

	prompt := fmt.Sprintf("CONTRACT:\n%s\n\nCONTENT:\n%s", contract, logger.Truncate(content, 24000))

	var out Verification
	_, err := v.client.Chat(ctx, llm.Request{
		SystemPrompt: verifySystemPrompt,
		UserPrompt:   prompt,
		SchemaName:   "verification",
		Schema:       verificationSchema,
		Temperature:  llm.Temp(0),
	}, &out)
	if err != nil {
		return Verification{}, fmt.Errorf("verify content: %w", err)
	}

	if out.Passed && v.minConfidence > 0 && out.Confidence < v.minConfidence {
		slog.InfoContext(ctx, "verification pass below confidence threshold",
			"confidence", out.Confidence,
			"min_confidence", v.minConfidence)
		out.Passed = false
		if out.Reason == "" {
			out.Reason = "verifier was not confident the contract is met"
		}
	}
	return out, nil
}

const verifySystemPrompt = `You verify artifacts. Decide whether the content satisfies every requirement of the contract.
List each unmet requirement as a gap. Do not invent requirements the contract does not state.`
