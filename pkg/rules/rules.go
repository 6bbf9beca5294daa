// Package rules is the deterministic authority of the service. Feasibility
// verdicts, policy compliance, and the confidence score all come from the
// pure functions here; the LLM may phrase nuance but never overrules them.
package rules

import (
	"fmt"

	"github.com/civicmind/civicmind/pkg/civic"
)

// FeasibilityVerdict is the outcome of a per-intent feasibility predicate.
// A repairable failure sends the pipeline back to the planner; an
// irrecoverable one continues with feasible=false.
type FeasibilityVerdict struct {
	OK         bool
	Reason     string
	Repairable bool

	// RepairHint is merged into the planner's constraints on the retry.
	RepairHint string
}

// PolicyVerdict is the outcome of the department policy check.
type PolicyVerdict struct {
	OK         bool
	Violations []string

	// Notes records applied emergency overrides and other non-violating
	// findings, for the audit trail.
	Notes []string
}

// FeasibilityFunc evaluates one intent against the normalized observations,
// the original request, and the current plan.
type FeasibilityFunc func(obs *civic.Observations, req *civic.Request, plan *civic.Plan) FeasibilityVerdict

// Policies holds one department's policy constants. The emergency override
// is itself declared here, not special-cased by callers.
type Policies struct {
	MaxShiftDelayDays        int
	MinMaintenanceNoticeDays int
	MaxConcurrentProjects    int

	// MaxBudgetUtilization caps one plan's cost as a fraction of the
	// location's remaining budget.
	MaxBudgetUtilization float64

	// EmergencyIntents bypass the notice and delay constants. The bypass is
	// recorded as a note on the verdict.
	EmergencyIntents map[civic.Intent]bool
}

// Engine is one department's rules instance.
type Engine struct {
	agent       civic.AgentType
	policies    Policies
	feasibility map[civic.Intent]FeasibilityFunc
}

// AgentType returns the owning department.
func (e *Engine) AgentType() civic.AgentType { return e.agent }

// Policies exposes the department constants (read-only use).
func (e *Engine) Policies() Policies { return e.policies }

// Feasibility runs the per-intent predicate. Intents without a dedicated
// predicate use the department-wide baseline (staffing and budget).
func (e *Engine) Feasibility(intent civic.Intent, obs *civic.Observations, req *civic.Request, plan *civic.Plan) FeasibilityVerdict {
	if fn, ok := e.feasibility[intent]; ok {
		return fn(obs, req, plan)
	}
	return baselineFeasibility(obs, req, plan)
}

// Policy enforces the department constants against the request and plan.
func (e *Engine) Policy(intent civic.Intent, obs *civic.Observations, req *civic.Request, plan *civic.Plan) PolicyVerdict {
	v := PolicyVerdict{OK: true}
	emergency := e.policies.EmergencyIntents[intent]

	if days, ok := req.IntField("requested_shift_days"); ok && e.policies.MaxShiftDelayDays > 0 {
		if days > e.policies.MaxShiftDelayDays {
			if emergency {
				v.Notes = append(v.Notes, fmt.Sprintf("emergency override: shift delay %dd exceeds limit %dd", days, e.policies.MaxShiftDelayDays))
			} else {
				v.Violations = append(v.Violations, fmt.Sprintf("requested shift delay %dd exceeds department limit of %dd", days, e.policies.MaxShiftDelayDays))
			}
		}
	}

	if days, ok := req.IntField("notice_days"); ok && e.policies.MinMaintenanceNoticeDays > 0 {
		if days < e.policies.MinMaintenanceNoticeDays {
			if emergency {
				v.Notes = append(v.Notes, fmt.Sprintf("emergency override: %dd notice below minimum %dd", days, e.policies.MinMaintenanceNoticeDays))
			} else {
				v.Violations = append(v.Violations, fmt.Sprintf("%dd notice is below the required minimum of %dd", days, e.policies.MinMaintenanceNoticeDays))
			}
		}
	}

	if e.policies.MaxConcurrentProjects > 0 && obs.ActiveProjects >= e.policies.MaxConcurrentProjects {
		v.Violations = append(v.Violations, fmt.Sprintf("location already has %d active projects (limit %d)", obs.ActiveProjects, e.policies.MaxConcurrentProjects))
	}

	if e.policies.MaxBudgetUtilization > 0 && plan != nil && plan.EstimatedCost > 0 && obs.BudgetRemaining > 0 {
		cap := civic.Money(float64(obs.BudgetRemaining) * e.policies.MaxBudgetUtilization)
		if plan.EstimatedCost > cap {
			v.Violations = append(v.Violations, fmt.Sprintf("plan cost %s exceeds %.0f%% of remaining budget (%s)", plan.EstimatedCost, e.policies.MaxBudgetUtilization*100, obs.BudgetRemaining))
		}
	}

	v.OK = len(v.Violations) == 0
	return v
}

// baselineFeasibility is the shared fallback: staffing and budget must hold.
func baselineFeasibility(obs *civic.Observations, req *civic.Request, plan *civic.Plan) FeasibilityVerdict {
	if !civic.Bool(obs.ManpowerSufficient, true) {
		if civic.Bool(obs.AlternateShiftOpen, false) && !planHasConstraint(plan, ConstraintUseOpenShift) {
			return FeasibilityVerdict{
				Reason:     "insufficient manpower on requested shift, but an alternate shift has capacity",
				Repairable: true,
				RepairHint: ConstraintUseOpenShift,
			}
		}
		if !civic.Bool(obs.AlternateShiftOpen, false) {
			return FeasibilityVerdict{Reason: "insufficient manpower and no open shift"}
		}
	}
	if obs.BudgetSufficient != nil && !*obs.BudgetSufficient {
		return FeasibilityVerdict{Reason: "insufficient remaining budget"}
	}
	return FeasibilityVerdict{OK: true}
}

// ConstraintUseOpenShift is the planner constraint that resolves a
// repairable staffing failure by moving work to a shift with capacity.
const ConstraintUseOpenShift = "schedule_on_open_shift"

func planHasConstraint(plan *civic.Plan, constraint string) bool {
	if plan == nil {
		return false
	}
	for _, c := range plan.Constraints {
		if c == constraint {
			return true
		}
	}
	return false
}

// ForAgent returns the rules engine of a department.
func ForAgent(agent civic.AgentType) *Engine {
	switch agent {
	case civic.AgentWater:
		return waterEngine()
	case civic.AgentEngineering:
		return engineeringEngine()
	case civic.AgentFire:
		return fireEngine()
	case civic.AgentSanitation:
		return sanitationEngine()
	case civic.AgentHealth:
		return healthEngine()
	case civic.AgentFinance:
		return financeEngine()
	}
	return &Engine{agent: agent, policies: Policies{}, feasibility: nil}
}
