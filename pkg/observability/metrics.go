// Package observability exposes service metrics through an OpenTelemetry
// meter backed by the Prometheus exporter. A zero-value Metrics records
// nothing, so callers never branch on whether metrics are enabled.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/civicmind/civicmind/pkg/civic"
)

// Metrics records the service's operational counters and histograms. All
// methods are safe on a nil or zero receiver.
type Metrics struct {
	jobsTotal      metric.Int64Counter
	jobDuration    metric.Float64Histogram
	decisionsTotal metric.Int64Counter

	toolCalls      metric.Int64Counter
	toolErrors     metric.Int64Counter
	toolDuration   metric.Float64Histogram
	llmRequests    metric.Int64Counter
	llmFallbacks   metric.Int64Counter
	conflictChecks metric.Int64Counter
}

// Init builds the meter over the default Prometheus registry; scrape the
// /metrics endpoint the server mounts. Disabled metrics return a recording
// no-op.
func Init(enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("civicmind")

	m := &Metrics{}

	if m.jobsTotal, err = meter.Int64Counter(
		"civicmind_jobs_total",
		metric.WithDescription("Jobs submitted, by terminal state"),
	); err != nil {
		return nil, err
	}
	if m.jobDuration, err = meter.Float64Histogram(
		"civicmind_job_duration_seconds",
		metric.WithDescription("Job wall-clock duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.decisionsTotal, err = meter.Int64Counter(
		"civicmind_decisions_total",
		metric.WithDescription("Pipeline decisions, by agent and outcome"),
	); err != nil {
		return nil, err
	}
	if m.toolCalls, err = meter.Int64Counter(
		"civicmind_tool_calls_total",
		metric.WithDescription("Tool executions"),
	); err != nil {
		return nil, err
	}
	if m.toolErrors, err = meter.Int64Counter(
		"civicmind_tool_errors_total",
		metric.WithDescription("Failed tool executions"),
	); err != nil {
		return nil, err
	}
	if m.toolDuration, err = meter.Float64Histogram(
		"civicmind_tool_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.llmRequests, err = meter.Int64Counter(
		"civicmind_llm_requests_total",
		metric.WithDescription("LLM calls, by phase"),
	); err != nil {
		return nil, err
	}
	if m.llmFallbacks, err = meter.Int64Counter(
		"civicmind_llm_fallbacks_total",
		metric.WithDescription("Phases that fell back to the deterministic path"),
	); err != nil {
		return nil, err
	}
	if m.conflictChecks, err = meter.Int64Counter(
		"civicmind_conflict_checks_total",
		metric.WithDescription("Coordinator checkpoints, by verdict"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordJob counts a finished job and its duration.
func (m *Metrics) RecordJob(ctx context.Context, state string, duration time.Duration) {
	if m == nil || m.jobsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("state", state))
	m.jobsTotal.Add(ctx, 1, attrs)
	m.jobDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordDecision counts a terminal pipeline decision.
func (m *Metrics) RecordDecision(ctx context.Context, agent civic.AgentType, decision civic.Decision) {
	if m == nil || m.decisionsTotal == nil {
		return
	}
	m.decisionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", string(agent)),
		attribute.String("decision", string(decision)),
	))
}

// RecordTool counts one tool execution.
func (m *Metrics) RecordTool(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolCalls == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.toolCalls.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

// RecordLLM counts one LLM consultation; fallback means the phase used its
// deterministic path instead of the model's answer.
func (m *Metrics) RecordLLM(ctx context.Context, phase string, fallback bool) {
	if m == nil || m.llmRequests == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("phase", phase))
	m.llmRequests.Add(ctx, 1, attrs)
	if fallback {
		m.llmFallbacks.Add(ctx, 1, attrs)
	}
}

// RecordConflictCheck counts a coordinator checkpoint by verdict.
func (m *Metrics) RecordConflictCheck(ctx context.Context, verdict civic.VerdictKind) {
	if m == nil || m.conflictChecks == nil {
		return
	}
	m.conflictChecks.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", string(verdict))))
}
