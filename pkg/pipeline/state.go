package pipeline

import (
	"time"

	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/contextstore"
)

// Phase names one step of the reasoning pipeline, in execution order.
type Phase string

const (
	PhaseValidate    Phase = "validate"
	PhaseContext     Phase = "context"
	PhaseIntent      Phase = "intent"
	PhaseGoal        Phase = "goal"
	PhasePlan        Phase = "plan"
	PhaseCheckpoint  Phase = "checkpoint"
	PhaseTools       Phase = "tools"
	PhaseObserve     Phase = "observe"
	PhaseFeasibility Phase = "feasibility"
	PhasePolicy      Phase = "policy"
	PhaseMemory      Phase = "memory"
	PhaseConfidence  Phase = "confidence"
	PhaseDecide      Phase = "decide"
)

// State is the working memory of one pipeline run. Each phase owns the
// fields it writes; later phases read but never rewrite earlier ones, except
// the planner fields which the two replanning loops regenerate.
type State struct {
	JobID   string
	Request *civic.Request

	// context phase
	Snapshot *contextstore.Snapshot

	// intent phase
	Intent civic.Intent
	Risk   civic.RiskLevel

	// goal phase
	Goal            string
	SuccessCriteria []string

	// plan phase; Constraints accumulates checkpoint recommendations and
	// feasibility repair hints across replans
	Plan        *civic.Plan
	Constraints []string

	// checkpoint phase; Human is set when an intervention resolved the
	// verdict, whichever way it went
	Verdict        *civic.Verdict
	CoordinationID string
	Human          *civic.HumanDecision

	// tools phase
	ToolResults []civic.ToolResult

	// observe phase
	Observations *civic.Observations

	// feasibility phase
	Feasible          bool
	FeasibilityReason string

	// policy phase
	PolicyOK         bool
	PolicyViolations []string
	PolicyNotes      []string

	// confidence phase
	Confidence float64

	// decide phase
	Decision      civic.Decision
	Rationale     string
	RequiresHuman bool

	// Retries is the shared budget of the checkpoint-retry and repairable
	// infeasibility loops.
	Retries int

	StartedAt time.Time
}

// Degraded reports whether the run proceeded on incomplete inputs: a partial
// context snapshot or an unreachable coordinator.
func (s *State) Degraded() bool {
	if s.Snapshot != nil && s.Snapshot.Degraded {
		return true
	}
	return s.Verdict != nil && s.Verdict.Degraded
}

// Output is the result payload returned to the caller when the job
// completes.
type Output struct {
	JobID     string          `json:"job_id"`
	AgentType civic.AgentType `json:"agent_type"`

	Decision   civic.Decision `json:"decision"`
	Confidence float64        `json:"confidence"`
	Rationale  string         `json:"rationale"`

	Intent civic.Intent    `json:"intent"`
	Risk   civic.RiskLevel `json:"risk"`
	Goal   string          `json:"goal,omitempty"`

	Plan         *civic.Plan         `json:"plan,omitempty"`
	Observations *civic.Observations `json:"observations,omitempty"`

	Feasible          bool     `json:"feasible"`
	FeasibilityReason string   `json:"feasibility_reason,omitempty"`
	PolicyOK          bool     `json:"policy_ok"`
	PolicyViolations  []string `json:"policy_violations,omitempty"`

	Retries       int  `json:"retries"`
	Degraded      bool `json:"degraded,omitempty"`
	RequiresHuman bool `json:"requires_human,omitempty"`

	AuditID     string    `json:"audit_id,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
