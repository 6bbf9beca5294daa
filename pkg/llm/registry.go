package llm

import (
	"fmt"

	"github.com/civicmind/civicmind/pkg/config"
)

// NewProvider builds the configured provider.
func NewProvider(cfg *config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// FromConfig assembles the full adapter, honoring the per-phase flags. When
// no phase has the LLM enabled, no provider is constructed at all.
func FromConfig(cfg *config.LLMConfig) (*Adapter, error) {
	if !cfg.Use.Any() {
		return Disabled(), nil
	}
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	enabled := map[Phase]bool{
		PhaseIntent:     cfg.Use.Intent,
		PhaseGoal:       cfg.Use.Goal,
		PhasePlanner:    cfg.Use.Planner,
		PhaseObserver:   cfg.Use.Observer,
		PhasePolicy:     cfg.Use.Policy,
		PhaseConfidence: cfg.Use.Confidence,
	}
	return NewAdapter(provider, cfg.Timeout, enabled), nil
}
