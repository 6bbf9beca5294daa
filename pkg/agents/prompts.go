package agents

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/contextstore"
)

// Prompt builders for the LLM-augmented phases. Each phase has a deterministic
// fallback, so prompts favor brevity over coverage; the schema appended by the
// adapter carries the output contract.

func (d *Department) promptHeader() string {
	return fmt.Sprintf("You are the %s department analyst of a municipal operations service.", d.Type)
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// IntentPrompt asks for intent classification and risk grading of a request.
func (d *Department) IntentPrompt(req *civic.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", d.promptHeader())
	fmt.Fprintf(&b, "Classify the intent and risk of this request.\n")
	fmt.Fprintf(&b, "Known intents: %s. Risk levels: low, medium, high, critical.\n\n", d.knownIntents())
	fmt.Fprintf(&b, "Request: %s\n", compactJSON(req))
	return b.String()
}

// GoalPrompt asks for a goal statement and success criteria.
func (d *Department) GoalPrompt(req *civic.Request, intent civic.Intent, risk civic.RiskLevel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", d.promptHeader())
	fmt.Fprintf(&b, "State the operational goal and 2-4 success criteria for this request.\n\n")
	fmt.Fprintf(&b, "Intent: %s\nRisk: %s\nRequest: %s\n", intent, risk, compactJSON(req))
	return b.String()
}

// PlannerPrompt asks for an ordered tool plan under the given constraints.
func (d *Department) PlannerPrompt(req *civic.Request, intent civic.Intent, goal string, snap *contextstore.Snapshot, constraints []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", d.promptHeader())
	fmt.Fprintf(&b, "Produce an ordered plan of tool calls to achieve the goal. Use only the listed tools. Every step needs a \"location\" arg.\n\n")
	fmt.Fprintf(&b, "Goal: %s\nIntent: %s\n", goal, intent)
	if len(constraints) > 0 {
		fmt.Fprintf(&b, "Hard constraints (the plan MUST honor these): %s\n", strings.Join(constraints, "; "))
	}
	fmt.Fprintf(&b, "\nAvailable tools:\n%s\n", d.Tools.Describe())
	fmt.Fprintf(&b, "City context: %s\nRequest: %s\n", compactJSON(snap), compactJSON(req))
	return b.String()
}

// ObserverPrompt asks for normalized observations over raw tool output.
func (d *Department) ObserverPrompt(req *civic.Request, results []civic.ToolResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", d.promptHeader())
	fmt.Fprintf(&b, "Normalize these raw tool results into structured observations. Leave fields you cannot determine null.\n\n")
	fmt.Fprintf(&b, "Request: %s\nTool results: %s\n", compactJSON(req), compactJSON(results))
	return b.String()
}

// PolicyPrompt asks for a policy reading; the rules engine verdict is
// authoritative and the answer may only add violations, never clear them.
func (d *Department) PolicyPrompt(req *civic.Request, plan *civic.Plan, violations []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", d.promptHeader())
	fmt.Fprintf(&b, "Review this plan against municipal policy. The listed violations are already established; report any additional ones you find.\n\n")
	fmt.Fprintf(&b, "Established violations: %s\n", compactJSON(violations))
	fmt.Fprintf(&b, "Plan: %s\nRequest: %s\n", compactJSON(plan), compactJSON(req))
	return b.String()
}

// ConfidencePrompt asks for an independent confidence score to blend with the
// deterministic one.
func (d *Department) ConfidencePrompt(req *civic.Request, obs *civic.Observations, feasible bool, policyOK bool, risk civic.RiskLevel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", d.promptHeader())
	fmt.Fprintf(&b, "Score your confidence (0.0-1.0) that acting on this assessment is correct.\n\n")
	fmt.Fprintf(&b, "Feasible: %t\nPolicy compliant: %t\nRisk: %s\n", feasible, policyOK, risk)
	fmt.Fprintf(&b, "Observations: %s\nRequest: %s\n", compactJSON(obs), compactJSON(req))
	return b.String()
}

func (d *Department) knownIntents() string {
	intents := make(map[civic.Intent]bool)
	for _, t := range AcceptedTypes(d.Type) {
		intents[IntentFor(t)] = true
	}
	var names []string
	for i := range intents {
		names = append(names, string(i))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
