package discovery

import (
	"fmt"
	"math"
	"strings"
)

// Strategy selects how candidate variances differ from one another.
type Strategy string

const (
	StrategyPrompting   Strategy = "prompting"
	StrategyTemperature Strategy = "temperature"
	StrategyConstraints Strategy = "constraints"
	StrategyMixed       Strategy = "mixed"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyPrompting, StrategyTemperature, StrategyConstraints, StrategyMixed:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown variance strategy %q", s)
	}
}

const (
	StyleParallelFirst = "parallel_first"
	StyleMinimal       = "minimal"
	StyleThorough      = "thorough"
	StyleBalanced      = "balanced"
	StyleDefault       = "default"
)

var promptStyles = []string{StyleParallelFirst, StyleMinimal, StyleThorough, StyleBalanced, StyleDefault}

var styleDirectives = map[string]string{
	StyleParallelFirst: "MAXIMUM PARALLELISM: prefer many independent leaf artifacts and shallow chains. " +
		"Only add a requirement when an artifact cannot be built without the other.",
	StyleMinimal:  "MINIMAL PLAN: use the fewest artifacts that fully satisfy the goal.",
	StyleThorough: "THOROUGH PLAN: include the supporting artifacts the goal needs, such as validation, tests and docs.",
	StyleBalanced: "BALANCED PLAN: keep waves of similar size and avoid a single bottleneck artifact.",
}

var constraints = []string{"", "max_depth=2", "min_leaves=3", "max_artifacts=10", "no_shared_locations"}

var constraintText = map[string]string{
	"max_depth=2":         "No dependency chain may be longer than 2 levels.",
	"min_leaves=3":        "At least 3 artifacts must have no requirements.",
	"max_artifacts=10":    "Use at most 10 artifacts.",
	"no_shared_locations": "No two artifacts may produce the same location.",
}

// Variance is one structured perturbation of the discovery request.
type Variance struct {
	Index       int
	Strategy    Strategy
	PromptStyle string
	Temperature *float64
	Constraint  string
	Hint        string
}

// Variances returns n configurations for strategy. Unknown strategies fall
// back to prompting.
func Variances(strategy Strategy, n int) []Variance {
	out := make([]Variance, 0, max(n, 0))
	for i := range n {
		v := Variance{Index: i, Strategy: strategy, PromptStyle: StyleDefault}
		switch strategy {
		case StrategyTemperature:
			v.Temperature = temperature(i)
		case StrategyConstraints:
			v.Constraint = constraints[i%len(constraints)]
		case StrategyMixed:
			v.PromptStyle = promptStyles[i%len(promptStyles)]
			v.Temperature = temperature(i)
			v.Constraint = constraints[i%len(constraints)]
		default:
			v.Strategy = StrategyPrompting
			v.PromptStyle = promptStyles[i%len(promptStyles)]
		}
		out = append(out, v)
	}
	return out
}

func temperature(i int) *float64 {
	t := math.Min(0.2+0.1*float64(i), 1.0)
	t = math.Round(t*100) / 100
	return &t
}

// Apply embeds the style directive, constraint and hint in the goal prompt.
func (v Variance) Apply(goal string) string {
	var b strings.Builder
	b.WriteString(goal)
	if d := styleDirectives[v.PromptStyle]; d != "" {
		b.WriteString("\n\n")
		b.WriteString(d)
	}
	if v.Constraint != "" {
		fmt.Fprintf(&b, "\n\nCONSTRAINT (%s): %s", v.Constraint, constraintText[v.Constraint])
	}
	if v.Hint != "" {
		b.WriteString("\n\n")
		b.WriteString(v.Hint)
	}
	return b.String()
}

// WithHint returns a copy of v carrying a retry hint.
func (v Variance) WithHint(hint string) Variance {
	v.Hint = hint
	return v
}

// Label is a short stable name recorded as artifact provenance.
func (v Variance) Label() string {
	parts := []string{string(v.Strategy)}
	if v.PromptStyle != "" && v.PromptStyle != StyleDefault {
		parts = append(parts, v.PromptStyle)
	}
	if v.Temperature != nil {
		parts = append(parts, fmt.Sprintf("t=%.1f", *v.Temperature))
	}
	if v.Constraint != "" {
		parts = append(parts, v.Constraint)
	}
	return strings.Join(parts, ":")
}
