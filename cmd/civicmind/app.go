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

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/civicmind/civicmind/pkg/agents"
	"github.com/civicmind/civicmind/pkg/audit"
	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/config"
	"github.com/civicmind/civicmind/pkg/config/provider"
	"github.com/civicmind/civicmind/pkg/contextstore"
	"github.com/civicmind/civicmind/pkg/coordinator"
	"github.com/civicmind/civicmind/pkg/jobs"
	"github.com/civicmind/civicmind/pkg/llm"
	"github.com/civicmind/civicmind/pkg/observability"
	"github.com/civicmind/civicmind/pkg/pipeline"
	"github.com/civicmind/civicmind/pkg/server"
)

// app owns the wired service components and their teardown order.
type app struct {
	cfg       *config.Config
	manager   *jobs.Manager
	srv       *server.Server
	pipelines []*pipeline.Pipeline
	closers   []io.Closer
}

// newApp wires the full service from configuration.
func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	metrics, err := observability.Init(cfg.Metrics.Enabled)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	ctxStore, err := contextstore.FromConfig(&cfg.ContextStore)
	if err != nil {
		return nil, fmt.Errorf("open context store: %w", err)
	}
	a.track(ctxStore)

	auditStore, err := audit.FromConfig(&cfg.Stores.Audit)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	a.track(auditStore)

	transparency, err := audit.NewTransparency(&cfg.Transparency)
	if err != nil {
		return nil, fmt.Errorf("open transparency sink: %w", err)
	}

	coordStore, err := coordinator.StoreFromConfig(&cfg.Stores.Coordination)
	if err != nil {
		return nil, fmt.Errorf("open coordination store: %w", err)
	}
	a.track(coordStore)

	coord := coordinator.New(coordStore, selectIntervention(cfg.Coordination, os.Stdin), cfg.Coordination)

	oracle, err := llm.FromConfig(&cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("configure llm: %w", err)
	}

	registry := agents.NewRegistry(ctxStore)
	runners := make(map[civic.AgentType]jobs.Runner, len(civic.AgentTypes()))
	for _, agent := range civic.AgentTypes() {
		dept, err := registry.Get(agent)
		if err != nil {
			return nil, err
		}
		p := pipeline.New(dept, oracle, ctxStore, coord,
			auditStore, transparency, metrics, cfg.Pipeline)
		runners[agent] = p
		a.pipelines = append(a.pipelines, p)
	}

	a.manager = jobs.NewManager(runners, cfg.Pipeline, metrics)
	a.srv = server.New(cfg.Server, a.manager, cfg.Metrics.Enabled, a.healthCheck)
	return a, nil
}

// selectIntervention picks the escalation channel: auto-approve when
// configured, the operator's terminal when one is attached, otherwise none
// (escalations surface in the decision output).
func selectIntervention(cfg config.CoordinationConfig, stdin *os.File) coordinator.Intervention {
	if cfg.AutoApprove {
		return coordinator.AutoApprove{}
	}
	if stat, err := stdin.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
		return &coordinator.Terminal{In: stdin, Out: os.Stderr}
	}
	return nil
}

// Serve runs the HTTP server until the context is cancelled, then drains
// in-flight jobs.
func (a *app) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.srv.Start(ctx) })
	err := g.Wait()
	a.manager.Shutdown(a.cfg.Server.ShutdownTimeout)
	return err
}

// healthCheck reports component status for the health endpoint. The
// coordinator and stores run in-process; anything that opened successfully
// at wiring time reports ok.
func (a *app) healthCheck(ctx context.Context) map[string]string {
	return map[string]string{"coordinator": "ok"}
}

// track registers a closer when the store actually holds resources.
func (a *app) track(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
}

// Close tears components down in reverse wiring order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

// watchConfig hot-reloads the config file. Only behavioral settings are
// applied live; structural changes (ports, stores) log a restart notice.
func watchConfig(ctx context.Context, path string, a *app) {
	p, err := provider.NewFileProvider(path)
	if err != nil {
		slog.Warn("config watch unavailable", "error", err)
		return
	}
	defer p.Close()

	loader := config.NewLoader(p, config.WithOnChange(func(next *config.Config) {
		if next.Server.Address() != a.cfg.Server.Address() ||
			next.Stores != a.cfg.Stores || next.ContextStore != a.cfg.ContextStore {
			slog.Warn("structural config change detected; restart to apply")
		}
		for _, pl := range a.pipelines {
			pl.UpdateConfig(next.Pipeline)
		}
		a.manager.UpdateConfig(next.Pipeline)
		slog.Info("behavioral config applied",
			"confidence_threshold", next.Pipeline.ConfidenceThreshold,
			"max_retries", next.Pipeline.MaxRetries)
	}))
	if err := loader.Watch(ctx); err != nil {
		slog.Warn("config watch stopped", "error", err)
	}
}
