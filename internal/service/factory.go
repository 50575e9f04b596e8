package service

import (
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/harmony/common/llm"
	"basegraph.app/harmony/core/config"
	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/discovery"
	"basegraph.app/harmony/internal/engine"
	"basegraph.app/harmony/internal/events"
	"basegraph.app/harmony/internal/planner"
	"github.com/redis/go-redis/v9"
)

const (
	breakerMaxFailures  = 5
	breakerOpenTimeout  = 30 * time.Second
	verifyMinConfidence = 0.6
	storeSinkBuffer     = 1024
)

// NewLLMCapabilities builds the guarded LLM provider and, when verification
// is enabled, the guarded verifier.
func NewLLMCapabilities(cfg config.Config) (discovery.Provider, discovery.Verifier, error) {
	discoveryClient, err := newClient(cfg.DiscoveryLLM, cfg.DiscoveryLLM.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("creating discovery LLM client: %w", err)
	}

	tiered := discovery.TieredClients{}
	m := cfg.MaterializeLLM
	if tiered.Default, err = newClient(m.LLMConfig, m.Model); err != nil {
		return nil, nil, fmt.Errorf("creating materialize LLM client: %w", err)
	}
	for _, tier := range []artifact.ModelTier{artifact.TierSmall, artifact.TierMedium, artifact.TierLarge} {
		model := m.TierModel(string(tier))
		if model == m.Model {
			continue
		}
		client, err := newClient(m.LLMConfig, model)
		if err != nil {
			return nil, nil, fmt.Errorf("creating %s tier LLM client: %w", tier, err)
		}
		switch tier {
		case artifact.TierSmall:
			tiered.Small = client
		case artifact.TierMedium:
			tiered.Medium = client
		case artifact.TierLarge:
			tiered.Large = client
		}
	}

	provider := discovery.GuardProvider(
		discovery.NewLLMProvider(discoveryClient, tiered),
		discovery.NewGuard(guardConfig("discovery", cfg)),
	)

	if !cfg.Execution.Verify {
		return provider, nil, nil
	}
	verifierClient, err := newClient(cfg.VerifierLLM, cfg.VerifierLLM.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("creating verifier LLM client: %w", err)
	}
	verifier := discovery.GuardVerifier(
		discovery.NewLLMVerifier(verifierClient, verifyMinConfidence),
		discovery.NewGuard(guardConfig("verifier", cfg)),
	)
	return provider, verifier, nil
}

func newClient(c config.LLMConfig, model string) (llm.Client, error) {
	return llm.New(llm.Config{
		Provider:  c.Provider,
		APIKey:    c.APIKey,
		BaseURL:   c.BaseURL,
		Model:     model,
		MaxTokens: c.MaxTokens,
	})
}

func guardConfig(name string, cfg config.Config) discovery.GuardConfig {
	return discovery.GuardConfig{
		Name:        name,
		CallTimeout: cfg.Limits.CallTimeout,
		MaxFailures: breakerMaxFailures,
		OpenTimeout: breakerOpenTimeout,
	}
}

// PlannerConfig maps configuration onto the harmonic planner.
func PlannerConfig(cfg config.Config) (planner.Config, error) {
	strategy, err := discovery.ParseStrategy(cfg.Planner.Variance)
	if err != nil {
		return planner.Config{}, err
	}
	w := cfg.Planner.Weights
	return planner.Config{
		Candidates:       cfg.Planner.Candidates,
		Strategy:         strategy,
		RefinementRounds: cfg.Planner.RefinementRounds,
		Weights: planner.Weights{
			Parallelism: w.Parallelism,
			Balance:     w.Balance,
			Depth:       w.Depth,
			Conflicts:   w.Conflicts,
		},
		Thresholds: planner.Thresholds{
			MinParallelism: cfg.Planner.MinParallelism,
			MaxBalance:     cfg.Planner.MaxBalance,
		},
		Retry:    discovery.DefaultRetryPolicy(cfg.Planner.CallAttempts),
		MaxDepth: cfg.Limits.MaxDepth,
		Timeout:  cfg.Planner.PlanningTimeout,
	}, nil
}

// EngineConfig maps configuration onto the execution engine.
func EngineConfig(cfg config.Config) engine.Config {
	return engine.Config{
		Concurrency:        cfg.Execution.Concurrency,
		VerifyAttempts:     cfg.Execution.VerifyAttempts,
		Retry:              discovery.DefaultRetryPolicy(cfg.Execution.CallAttempts),
		Verify:             cfg.Execution.Verify,
		DynamicExpansion:   cfg.Execution.DynamicExpansion,
		MaxArtifacts:       cfg.Limits.MaxArtifacts,
		MaxDiscoveryRounds: cfg.Limits.MaxDiscoveryRounds,
		ExecutionTimeout:   cfg.Limits.ExecutionTimeout,
		AllowExplosion:     cfg.Limits.AllowExplosion,
	}
}

// NewPipeline wires a planner and an engine around the given capabilities.
func NewPipeline(cfg config.Config, provider discovery.Provider, verifier discovery.Verifier) (*planner.Planner, *engine.Engine, error) {
	pcfg, err := PlannerConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	return planner.New(provider, pcfg), engine.New(provider, verifier, EngineConfig(cfg)), nil
}

// NewEventSink fans run events out to the log, the run's Redis stream and
// the durable event history. Nil backends are skipped. The returned Async,
// when non-nil, must be closed to flush pending history writes.
func NewEventSink(client *redis.Client, cfg config.RedisConfig, history events.Appender) (events.Sink, *events.Async) {
	sinks := []events.Sink{events.LogSink{Level: slog.LevelDebug}}
	if client != nil {
		sinks = append(sinks, events.NewRedisSink(client, cfg.EventStreamPrefix, cfg.EventStreamMaxLen))
	}
	var async *events.Async
	if history != nil {
		async = events.NewAsync(events.NewStoreSink(history), storeSinkBuffer)
		sinks = append(sinks, async)
	}
	return events.Multi(sinks...), async
}
