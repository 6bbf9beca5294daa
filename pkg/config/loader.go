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

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/civicmind/civicmind/pkg/config/provider"
)

// Loader loads and watches configuration from a Provider.
type Loader struct {
	provider provider.Provider
	onChange func(*Config)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOnChange sets a callback invoked when the config changes on disk.
func WithOnChange(fn func(*Config)) LoaderOption {
	return func(l *Loader) { l.onChange = fn }
}

// NewLoader creates a Loader over the given provider.
func NewLoader(p provider.Provider, opts ...LoaderOption) *Loader {
	l := &Loader{provider: p}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads, expands, decodes, defaults, and validates the configuration.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	data, err := l.provider.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var rawMap map[string]any
	if err := yaml.Unmarshal(data, &rawMap); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	expanded := expandEnvVars(rawMap)

	cfg := &Config{}
	if err := decodeConfig(expanded, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Watch reloads on provider change events and invokes the onChange callback
// with each valid new config. Invalid configs are logged and skipped; the
// running service keeps its current settings. Blocks until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context) error {
	changes, err := l.provider.Watch(ctx)
	if err != nil {
		return fmt.Errorf("start config watch: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			cfg, err := l.Load(ctx)
			if err != nil {
				slog.Warn("config reload failed, keeping current config", "error", err)
				continue
			}
			slog.Info("config reloaded")
			if l.onChange != nil {
				l.onChange(cfg)
			}
		}
	}
}

// envVarPattern matches ${VAR} and ${VAR:default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)

// expandEnvVars walks the raw map and substitutes ${VAR} / ${VAR:default}
// references in string values.
func expandEnvVars(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = expandEnvVars(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = expandEnvVars(inner)
		}
		return out
	case string:
		return envVarPattern.ReplaceAllStringFunc(val, func(match string) string {
			groups := envVarPattern.FindStringSubmatch(match)
			if env, ok := os.LookupEnv(groups[1]); ok {
				return env
			}
			return groups[2]
		})
	default:
		return v
	}
}

// decodeConfig maps the raw structure onto Config, parsing duration strings.
func decodeConfig(raw any, cfg *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

// LoadFile is the common path: build a file provider, load once.
func LoadFile(ctx context.Context, path string) (*Config, error) {
	p, err := provider.NewFileProvider(path)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return NewLoader(p).Load(ctx)
}

// FromEnv applies legacy flat environment overrides recognized for
// operational convenience (USE_LLM_FOR_PLANNER=true etc.) on top of cfg.
func FromEnv(cfg *Config) {
	flag := func(name string, target *bool) {
		if v, ok := os.LookupEnv(name); ok {
			*target = strings.EqualFold(v, "true") || v == "1"
		}
	}
	flag("USE_LLM_FOR_INTENT", &cfg.LLM.Use.Intent)
	flag("USE_LLM_FOR_GOAL", &cfg.LLM.Use.Goal)
	flag("USE_LLM_FOR_PLANNER", &cfg.LLM.Use.Planner)
	flag("USE_LLM_FOR_OBSERVER", &cfg.LLM.Use.Observer)
	flag("USE_LLM_FOR_POLICY", &cfg.LLM.Use.Policy)
	flag("USE_LLM_FOR_CONFIDENCE", &cfg.LLM.Use.Confidence)
	flag("COORDINATION_AUTO_APPROVE", &cfg.Coordination.AutoApprove)
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
}
