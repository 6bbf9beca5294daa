// Package llm adapts an external LLM to a JSON-in/JSON-out oracle. Every
// call site owns a deterministic fallback: on timeout, transport failure, or
// unparseable output the adapter returns ErrNoAnswer and the pipeline phase
// completes without it.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
)

// Phase names a pipeline phase that may consult the LLM. Each is switchable
// in configuration independently of the others.
type Phase string

const (
	PhaseIntent     Phase = "intent"
	PhaseGoal       Phase = "goal"
	PhasePlanner    Phase = "planner"
	PhaseObserver   Phase = "observer"
	PhasePolicy     Phase = "policy"
	PhaseConfidence Phase = "confidence"
)

// ErrNoAnswer means the oracle produced nothing usable. Callers fall back to
// their deterministic path; this error never fails a pipeline.
var ErrNoAnswer = errors.New("llm: no answer")

// ErrDisabled means the phase has the LLM switched off.
var ErrDisabled = errors.New("llm: disabled for phase")

// Provider is a completion backend (OpenAI-compatible or Anthropic).
type Provider interface {
	Name() string

	// Complete sends the prompt and returns raw model text.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Adapter gates a Provider behind per-phase flags and a per-call timeout,
// and normalizes output into parsed JSON.
type Adapter struct {
	provider Provider
	timeout  time.Duration
	enabled  map[Phase]bool
}

// NewAdapter builds an adapter. A nil provider behaves as all-disabled.
func NewAdapter(provider Provider, timeout time.Duration, enabled map[Phase]bool) *Adapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{provider: provider, timeout: timeout, enabled: enabled}
}

// Disabled returns an adapter with every phase off, for fallback-only runs.
func Disabled() *Adapter {
	return &Adapter{timeout: time.Second}
}

// Enabled reports whether the phase may call the LLM.
func (a *Adapter) Enabled(phase Phase) bool {
	return a != nil && a.provider != nil && a.enabled[phase]
}

// GenerateJSON asks the oracle for an object matching out's schema and
// unmarshals the reply into out. The expected JSON schema (derived by
// reflection) is appended to the prompt so the model knows the shape.
func (a *Adapter) GenerateJSON(ctx context.Context, phase Phase, prompt string, out any) error {
	if !a.Enabled(phase) {
		return ErrDisabled
	}

	full := prompt + "\n\nRespond with a single JSON object matching this schema, no prose:\n" + schemaFor(out)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.provider.Complete(ctx, full)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoAnswer, err)
	}

	cleaned := StripFences(raw)
	if cleaned == "" {
		return ErrNoAnswer
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrNoAnswer, err)
	}
	return nil
}

// schemaFor renders a compact JSON schema for the target type.
func schemaFor(out any) string {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	schema := reflector.Reflect(out)
	data, err := json.Marshal(schema)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// StripFences removes markdown code-fence framing that models commonly wrap
// JSON in, and trims to the outermost object when prose leaks around it.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}
	return s
}
