// Package civic holds the shared domain types exchanged between the job
// manager, the agent pipeline, the coordinator, and the audit log. It has no
// dependencies on the packages that use it.
package civic

import (
	"encoding/json"
	"fmt"
	"time"
)

// Money is an amount in whole rupees. Budgets in the municipal datasets are
// quoted in lakh (1e5) and crore (1e7); the constructors below keep call
// sites readable.
type Money int64

// Lakh returns n lakh rupees.
func Lakh(n int64) Money { return Money(n * 100_000) }

// Crore returns n crore rupees.
func Crore(n int64) Money { return Money(n * 10_000_000) }

// Lakhs reports the amount in lakh as a float, for display and scoring.
func (m Money) Lakhs() float64 { return float64(m) / 100_000 }

func (m Money) String() string {
	switch {
	case m >= 10_000_000 && m%10_000_000 == 0:
		return fmt.Sprintf("₹%dCr", int64(m)/10_000_000)
	case m >= 100_000:
		return fmt.Sprintf("₹%.1fL", m.Lakhs())
	default:
		return fmt.Sprintf("₹%d", int64(m))
	}
}

// AgentType identifies one of the six department agents.
type AgentType string

const (
	AgentWater       AgentType = "water"
	AgentEngineering AgentType = "engineering"
	AgentFire        AgentType = "fire"
	AgentSanitation  AgentType = "sanitation"
	AgentHealth      AgentType = "health"
	AgentFinance     AgentType = "finance"
)

// AgentTypes lists all department agents in routing order.
func AgentTypes() []AgentType {
	return []AgentType{
		AgentWater, AgentEngineering, AgentFire,
		AgentSanitation, AgentHealth, AgentFinance,
	}
}

// RiskLevel grades the safety impact of a request.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders risk levels for comparisons (low < medium < high < critical).
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return 1
}

// Decision is a terminal pipeline outcome. Only DecisionRecommend authorizes
// the caller to proceed without human review.
type Decision string

const (
	DecisionRecommend Decision = "recommend"
	DecisionEscalate  Decision = "escalate"
	DecisionReject    Decision = "reject"
)

// Request is the immutable client input. Type-specific fields that are not
// part of the common shape are preserved in Fields.
type Request struct {
	Type            string    `json:"type"`
	Location        string    `json:"location"`
	Originator      string    `json:"originator,omitempty"`
	EstimatedCost   Money     `json:"estimated_cost,omitempty"`
	ResourcesNeeded []string  `json:"resources_needed,omitempty"`
	SubmittedAt     time.Time `json:"submitted_at,omitempty"`

	// Fields carries per-type extras (e.g. requested_shift_days, priority).
	Fields map[string]any `json:"fields,omitempty"`
}

// requestAlias avoids recursing into UnmarshalJSON.
type requestAlias Request

// UnmarshalJSON decodes the common shape and folds every unknown key into
// Fields, so free-form per-type fields survive submission.
func (r *Request) UnmarshalJSON(data []byte) error {
	var a requestAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := map[string]bool{
		"type": true, "location": true, "originator": true,
		"estimated_cost": true, "resources_needed": true,
		"submitted_at": true, "fields": true,
	}
	for k, v := range raw {
		if known[k] {
			continue
		}
		if a.Fields == nil {
			a.Fields = make(map[string]any)
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		a.Fields[k] = val
	}
	*r = Request(a)
	return nil
}

// Field returns a free-form field by name.
func (r *Request) Field(name string) (any, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// StringField returns a free-form field coerced to string.
func (r *Request) StringField(name string) string {
	if v, ok := r.Fields[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// IntField returns a free-form field coerced to int. JSON numbers decode as
// float64, so both forms are accepted.
func (r *Request) IntField(name string) (int, bool) {
	switch v := r.Fields[name].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// PlanStep is a single tool invocation in a plan.
type PlanStep struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// Plan is the planner's output: ordered tool calls plus constraints and an
// estimated cost.
type Plan struct {
	Steps            []PlanStep `json:"steps"`
	Constraints      []string   `json:"constraints,omitempty"`
	ExpectedDuration string     `json:"expected_duration,omitempty"`
	EstimatedCost    Money      `json:"estimated_cost,omitempty"`
	Summary          string     `json:"summary,omitempty"`

	// WaitsFor names agents whose active work this plan depends on. The
	// coordinator uses it for circular-dependency detection.
	WaitsFor []AgentType `json:"waits_for,omitempty"`
}

// ToolResult is the recorded output of one executed plan step. A failed step
// carries Error and an empty Output; the pipeline continues regardless.
type ToolResult struct {
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args,omitempty"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
}

// Observations is the flat, typed record the observer derives from raw tool
// results. Tri-state booleans use pointers: nil means the underlying data was
// never observed.
type Observations struct {
	ManpowerSufficient  *bool   `json:"manpower_sufficient,omitempty"`
	EquipmentAvailable  *bool   `json:"equipment_available,omitempty"`
	BudgetSufficient    *bool   `json:"budget_sufficient,omitempty"`
	BudgetRemaining     Money   `json:"budget_remaining,omitempty"`
	InfraCondition      string  `json:"infra_condition,omitempty"`
	ActiveProjects      int     `json:"active_projects,omitempty"`
	RecentIncidents     int     `json:"recent_incidents,omitempty"`
	AlternateShiftOpen  *bool   `json:"alternate_shift_open,omitempty"`
	ScheduleSlackDays   int     `json:"schedule_slack_days,omitempty"`
	DataCompleteness    float64 `json:"data_completeness"`
	ContextDegraded     bool    `json:"context_degraded,omitempty"`
	EmergencyUnitsReady int     `json:"emergency_units_ready,omitempty"`
}

// Bool reads a tri-state observation with a default for the unobserved case.
func Bool(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// BoolPtr is a convenience for building Observations literals.
func BoolPtr(b bool) *bool { return &b }

// ConflictKind classifies a detected plan conflict.
type ConflictKind string

const (
	ConflictLocation ConflictKind = "location"
	ConflictResource ConflictKind = "resource"
	ConflictBudget   ConflictKind = "budget"
	ConflictCircular ConflictKind = "circular"
)

// Conflict describes one clash between an incoming plan and an active
// coordination decision.
type Conflict struct {
	Kind        ConflictKind `json:"kind"`
	Description string       `json:"description"`
	AgentType   AgentType    `json:"agent_type,omitempty"`
	Location    string       `json:"location,omitempty"`
}

// VerdictKind is the coordinator's answer to a checkpoint.
type VerdictKind string

const (
	VerdictProceed  VerdictKind = "proceed"
	VerdictRetry    VerdictKind = "retry"
	VerdictEscalate VerdictKind = "escalate"
)

// Verdict is the full checkpoint response. Degraded is set by the agent when
// the coordinator was unreachable and the pipeline proceeded without it.
type Verdict struct {
	Kind            VerdictKind `json:"kind"`
	Conflicts       []Conflict  `json:"conflicts,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
	RequiresHuman   bool        `json:"requires_human,omitempty"`
	Degraded        bool        `json:"degraded,omitempty"`
	DecisionID      string      `json:"decision_id,omitempty"`

	// Human is set when an intervention resolved the checkpoint.
	Human *HumanDecision `json:"human,omitempty"`
}

// CoordinationStatus is the lifecycle of a persisted coordination decision.
type CoordinationStatus string

const (
	CoordinationActive     CoordinationStatus = "active"
	CoordinationCompleted  CoordinationStatus = "completed"
	CoordinationSuperseded CoordinationStatus = "superseded"
)

// CoordinationDecision is the per-plan row shared by all agents. It is
// mutated only through the coordinator's store; the sole in-place update is
// Status.
type CoordinationDecision struct {
	ID              string             `json:"id"`
	AgentType       AgentType          `json:"agent_type"`
	Location        string             `json:"location"`
	ResourcesNeeded []string           `json:"resources_needed,omitempty"`
	EstimatedCost   Money              `json:"estimated_cost,omitempty"`
	Status          CoordinationStatus `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	PlanSummary     string             `json:"plan_summary,omitempty"`
	WaitsFor        []AgentType        `json:"waits_for,omitempty"`
}

// HumanDecision records the outcome of a human intervention.
type HumanDecision struct {
	Choice    string    `json:"choice"` // approve, defer, reject, modify
	Approver  string    `json:"approver,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Intersects reports whether two resource sets share an element. Matching is
// case-sensitive; resource names are normalized at submission.
func Intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}
