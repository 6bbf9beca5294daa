package rules

import "github.com/civicmind/civicmind/pkg/civic"

// Finance department intents.
const (
	IntentAllocateBudget     civic.Intent = "allocate_budget"
	IntentApproveExpenditure civic.Intent = "approve_expenditure"
	IntentReviewGrant        civic.Intent = "review_grant"
	IntentConductAudit       civic.Intent = "conduct_audit"

	// IntentGeneralReview is the catch-all for request types no department
	// claims; Finance reviews them and escalates readily.
	IntentGeneralReview civic.Intent = "general_review"
)

func financeEngine() *Engine {
	return &Engine{
		agent: civic.AgentFinance,
		policies: Policies{
			MaxShiftDelayDays:        0,
			MinMaintenanceNoticeDays: 0,
			MaxConcurrentProjects:    0, // finance work is not project-capped
			MaxBudgetUtilization:     0.4,
			EmergencyIntents:         map[civic.Intent]bool{},
		},
		feasibility: map[civic.Intent]FeasibilityFunc{
			IntentReviewGrant:  alwaysFeasible,
			IntentConductAudit: alwaysFeasible,
			IntentGeneralReview: func(obs *civic.Observations, _ *civic.Request, _ *civic.Plan) FeasibilityVerdict {
				// Unrouted requests are reviewable but never recommendable;
				// feasibility holds so the decision hinges on policy/risk.
				return FeasibilityVerdict{OK: true}
			},
			IntentAllocateBudget: func(obs *civic.Observations, req *civic.Request, plan *civic.Plan) FeasibilityVerdict {
				if obs.BudgetSufficient != nil && !*obs.BudgetSufficient {
					return FeasibilityVerdict{Reason: "requested allocation exceeds remaining budget"}
				}
				return FeasibilityVerdict{OK: true}
			},
			IntentApproveExpenditure: func(obs *civic.Observations, req *civic.Request, plan *civic.Plan) FeasibilityVerdict {
				if req.EstimatedCost > 0 && obs.BudgetRemaining > 0 && req.EstimatedCost > obs.BudgetRemaining {
					return FeasibilityVerdict{Reason: "expenditure exceeds remaining budget"}
				}
				return FeasibilityVerdict{OK: true}
			},
		},
	}
}
