package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the tunable parts of Config. Absent keys leave the
// environment value untouched.
//
//	[planner]
//	candidates = 5
//	variance = "mixed"
//
//	[planner.weights]
//	parallelism = 0.4
//
//	[limits]
//	max_artifacts = 80
//	execution_timeout = "45m"
type fileConfig struct {
	Planner struct {
		Candidates       *int     `toml:"candidates"`
		Variance         *string  `toml:"variance"`
		RefinementRounds *int     `toml:"refinement_rounds"`
		CallAttempts     *int     `toml:"call_attempts"`
		MinParallelism   *float64 `toml:"min_parallelism"`
		MaxBalance       *float64 `toml:"max_balance"`
		PlanningTimeout  duration `toml:"planning_timeout"`
		Weights          struct {
			Parallelism *float64 `toml:"parallelism"`
			Balance     *float64 `toml:"balance"`
			Depth       *float64 `toml:"depth"`
			Conflicts   *float64 `toml:"conflicts"`
		} `toml:"weights"`
	} `toml:"planner"`

	Limits struct {
		MaxArtifacts       *int     `toml:"max_artifacts"`
		MaxDiscoveryRounds *int     `toml:"max_discovery_rounds"`
		MaxDepth           *int     `toml:"max_depth"`
		CallTimeout        duration `toml:"call_timeout"`
		ExecutionTimeout   duration `toml:"execution_timeout"`
		AllowExplosion     *bool    `toml:"allow_explosion"`
	} `toml:"limits"`

	Execution struct {
		Concurrency      *int  `toml:"concurrency"`
		VerifyAttempts   *int  `toml:"verify_attempts"`
		CallAttempts     *int  `toml:"call_attempts"`
		Verify           *bool `toml:"verify"`
		DynamicExpansion *bool `toml:"dynamic_expansion"`
	} `toml:"execution"`
}

type duration struct {
	time.Duration
	set bool
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	d.set = true
	return nil
}

// ApplyFile overlays the TOML file at path onto cfg.
func ApplyFile(cfg *Config, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("decoding config file %s: %w", path, err)
	}

	p := &cfg.Planner
	setInt(&p.Candidates, fc.Planner.Candidates)
	setString(&p.Variance, fc.Planner.Variance)
	setInt(&p.RefinementRounds, fc.Planner.RefinementRounds)
	setInt(&p.CallAttempts, fc.Planner.CallAttempts)
	setFloat(&p.MinParallelism, fc.Planner.MinParallelism)
	setFloat(&p.MaxBalance, fc.Planner.MaxBalance)
	setDuration(&p.PlanningTimeout, fc.Planner.PlanningTimeout)
	setFloat(&p.Weights.Parallelism, fc.Planner.Weights.Parallelism)
	setFloat(&p.Weights.Balance, fc.Planner.Weights.Balance)
	setFloat(&p.Weights.Depth, fc.Planner.Weights.Depth)
	setFloat(&p.Weights.Conflicts, fc.Planner.Weights.Conflicts)

	l := &cfg.Limits
	setInt(&l.MaxArtifacts, fc.Limits.MaxArtifacts)
	setInt(&l.MaxDiscoveryRounds, fc.Limits.MaxDiscoveryRounds)
	setInt(&l.MaxDepth, fc.Limits.MaxDepth)
	setDuration(&l.CallTimeout, fc.Limits.CallTimeout)
	setDuration(&l.ExecutionTimeout, fc.Limits.ExecutionTimeout)
	setBool(&l.AllowExplosion, fc.Limits.AllowExplosion)

	e := &cfg.Execution
	setInt(&e.Concurrency, fc.Execution.Concurrency)
	setInt(&e.VerifyAttempts, fc.Execution.VerifyAttempts)
	setInt(&e.CallAttempts, fc.Execution.CallAttempts)
	setBool(&e.Verify, fc.Execution.Verify)
	setBool(&e.DynamicExpansion, fc.Execution.DynamicExpansion)

	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v duration) {
	if v.set {
		*dst = v.Duration
	}
}
