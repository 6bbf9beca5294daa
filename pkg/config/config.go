// Copyright 2025 The Civicmind Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config defines the typed service configuration, its defaults and
// validation, and the loader that reads it from a provider with environment
// variable expansion.
package config

import (
	"fmt"
	"time"

	"github.com/civicmind/civicmind/pkg/civic"
)

// Config is the root configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline" yaml:"pipeline"`
	Coordination CoordinationConfig `mapstructure:"coordination" yaml:"coordination"`
	LLM          LLMConfig          `mapstructure:"llm" yaml:"llm"`
	ContextStore StoreConfig        `mapstructure:"context_store" yaml:"context_store"`
	Stores       StoresConfig       `mapstructure:"stores" yaml:"stores"`
	Transparency TransparencyConfig `mapstructure:"transparency" yaml:"transparency"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
}

// ServerConfig configures the HTTP front door.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Address returns host:port.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PipelineConfig bounds the agent reasoning pipeline.
type PipelineConfig struct {
	// ConfidenceThreshold gates recommend vs escalate.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`

	// MaxRetries caps replanning loops (checkpoint retry + repairable
	// infeasibility share this budget).
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// JobTimeout is the wall-clock cap for one job.
	JobTimeout time.Duration `mapstructure:"job_timeout" yaml:"job_timeout"`

	// ToolTimeout bounds a single tool step.
	ToolTimeout time.Duration `mapstructure:"tool_timeout" yaml:"tool_timeout"`

	// CheckpointTimeout bounds the coordinator rendezvous; on expiry the
	// pipeline proceeds degraded.
	CheckpointTimeout time.Duration `mapstructure:"checkpoint_timeout" yaml:"checkpoint_timeout"`
}

// CoordinationConfig configures conflict checking and human intervention.
type CoordinationConfig struct {
	// CostEscalationLimitLakh: conflicted plans above this go to a human.
	CostEscalationLimitLakh int64 `mapstructure:"cost_escalation_limit_lakh" yaml:"cost_escalation_limit_lakh"`

	// BudgetCeilingLakh is the per-fiscal-scope ceiling used by the budget
	// conflict rule.
	BudgetCeilingLakh int64 `mapstructure:"budget_ceiling_lakh" yaml:"budget_ceiling_lakh"`

	// ConflictWindow is the lookback for active coordination decisions.
	ConflictWindow time.Duration `mapstructure:"conflict_window" yaml:"conflict_window"`

	// AutoApprove answers every human intervention with approve. Test and
	// headless deployments only.
	AutoApprove bool `mapstructure:"auto_approve" yaml:"auto_approve"`
}

// CostEscalationLimit returns the limit as Money.
func (c *CoordinationConfig) CostEscalationLimit() civic.Money {
	return civic.Lakh(c.CostEscalationLimitLakh)
}

// BudgetCeiling returns the ceiling as Money.
func (c *CoordinationConfig) BudgetCeiling() civic.Money {
	return civic.Lakh(c.BudgetCeilingLakh)
}

// LLMConfig configures the oracle adapter. Each pipeline phase that can use
// the LLM is individually switchable; with everything off the service runs on
// deterministic fallbacks alone.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider" yaml:"provider"` // openai, anthropic
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	Host        string  `mapstructure:"host" yaml:"host"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`

	// Timeout is per LLM call; on expiry the phase falls back.
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`

	Use LLMUseConfig `mapstructure:"use" yaml:"use"`
}

// LLMUseConfig holds the per-phase enablement flags.
type LLMUseConfig struct {
	Intent     bool `mapstructure:"intent" yaml:"intent"`
	Goal       bool `mapstructure:"goal" yaml:"goal"`
	Planner    bool `mapstructure:"planner" yaml:"planner"`
	Observer   bool `mapstructure:"observer" yaml:"observer"`
	Policy     bool `mapstructure:"policy" yaml:"policy"`
	Confidence bool `mapstructure:"confidence" yaml:"confidence"`
}

// Any reports whether any phase has the LLM enabled.
func (u LLMUseConfig) Any() bool {
	return u.Intent || u.Goal || u.Planner || u.Observer || u.Policy || u.Confidence
}

// StoreConfig is a SQL (or in-memory) store location.
type StoreConfig struct {
	// Driver: sqlite, postgres, mysql, or memory.
	Driver string `mapstructure:"driver" yaml:"driver"`

	// DSN is the connection string; for sqlite, the file path.
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	MaxConns int `mapstructure:"max_conns" yaml:"max_conns"`
	MaxIdle  int `mapstructure:"max_idle" yaml:"max_idle"`
}

// StoresConfig groups the mutable stores.
type StoresConfig struct {
	Coordination StoreConfig `mapstructure:"coordination" yaml:"coordination"`
	Audit        StoreConfig `mapstructure:"audit" yaml:"audit"`
}

// TransparencyConfig configures the write-only vector sink for audit records.
type TransparencyConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"` // chromem persistence dir; empty = in-memory
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// SetDefaults fills zero values with production defaults.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Pipeline.ConfidenceThreshold == 0 {
		c.Pipeline.ConfidenceThreshold = 0.7
	}
	if c.Pipeline.MaxRetries == 0 {
		c.Pipeline.MaxRetries = 3
	}
	if c.Pipeline.JobTimeout == 0 {
		c.Pipeline.JobTimeout = 5 * time.Minute
	}
	if c.Pipeline.ToolTimeout == 0 {
		c.Pipeline.ToolTimeout = 10 * time.Second
	}
	if c.Pipeline.CheckpointTimeout == 0 {
		c.Pipeline.CheckpointTimeout = 15 * time.Second
	}
	if c.Coordination.CostEscalationLimitLakh == 0 {
		c.Coordination.CostEscalationLimitLakh = 50
	}
	if c.Coordination.BudgetCeilingLakh == 0 {
		c.Coordination.BudgetCeilingLakh = 1000 // ₹10Cr per fiscal scope
	}
	if c.Coordination.ConflictWindow == 0 {
		c.Coordination.ConflictWindow = 24 * time.Hour
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.2
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 30 * time.Second
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 2
	}
	for _, sc := range []*StoreConfig{&c.ContextStore, &c.Stores.Coordination, &c.Stores.Audit} {
		if sc.Driver == "" {
			sc.Driver = "memory"
		}
		if sc.MaxConns == 0 {
			sc.MaxConns = 10
		}
		if sc.MaxIdle == 0 {
			sc.MaxIdle = 2
		}
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Pipeline.ConfidenceThreshold < 0 || c.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.confidence_threshold %.2f must be in [0,1]", c.Pipeline.ConfidenceThreshold)
	}
	if c.Pipeline.MaxRetries < 0 || c.Pipeline.MaxRetries > 10 {
		return fmt.Errorf("pipeline.max_retries %d must be in [0,10]", c.Pipeline.MaxRetries)
	}
	if c.Coordination.CostEscalationLimitLakh < 0 {
		return fmt.Errorf("coordination.cost_escalation_limit_lakh must be non-negative")
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider %q not supported (openai, anthropic)", c.LLM.Provider)
	}
	if c.LLM.Use.Any() && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required when any llm.use flag is set")
	}
	for name, sc := range map[string]StoreConfig{
		"context_store":       c.ContextStore,
		"stores.coordination": c.Stores.Coordination,
		"stores.audit":        c.Stores.Audit,
	} {
		switch sc.Driver {
		case "memory", "sqlite", "postgres", "mysql":
		default:
			return fmt.Errorf("%s.driver %q not supported (memory, sqlite, postgres, mysql)", name, sc.Driver)
		}
		if sc.Driver != "memory" && sc.DSN == "" {
			return fmt.Errorf("%s.dsn is required for driver %q", name, sc.Driver)
		}
	}
	return nil
}

// Default returns a fully defaulted config without reading any file.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}
