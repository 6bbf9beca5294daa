package rules

import "github.com/civicmind/civicmind/pkg/civic"

// Engineering department intents.
const (
	IntentPlanProject         civic.Intent = "plan_project"
	IntentAssessCapacity      civic.Intent = "assess_capacity"
	IntentRepairRoad          civic.Intent = "repair_infrastructure"
	IntentAssessStructure     civic.Intent = "assess_structure"
	IntentReviewPermit        civic.Intent = "review_permit"
)

func engineeringEngine() *Engine {
	return &Engine{
		agent: civic.AgentEngineering,
		policies: Policies{
			MaxShiftDelayDays:        5,
			MinMaintenanceNoticeDays: 7,
			MaxConcurrentProjects:    3,
			MaxBudgetUtilization:     0.5,
			EmergencyIntents:         map[civic.Intent]bool{},
		},
		feasibility: map[civic.Intent]FeasibilityFunc{
			IntentPlanProject: func(obs *civic.Observations, req *civic.Request, plan *civic.Plan) FeasibilityVerdict {
				if base := baselineFeasibility(obs, req, plan); !base.OK {
					return base
				}
				// New projects queue behind the concurrency cap instead of
				// starting and stalling.
				if obs.ActiveProjects >= 3 {
					return FeasibilityVerdict{Reason: "project slots at this location are saturated"}
				}
				return FeasibilityVerdict{OK: true}
			},
			IntentAssessCapacity: alwaysFeasible,
			IntentReviewPermit:   alwaysFeasible,
			IntentRepairRoad: func(obs *civic.Observations, req *civic.Request, plan *civic.Plan) FeasibilityVerdict {
				if base := baselineFeasibility(obs, req, plan); !base.OK {
					return base
				}
				return FeasibilityVerdict{OK: true}
			},
		},
	}
}

// alwaysFeasible covers pure assessment intents with no field work.
func alwaysFeasible(_ *civic.Observations, _ *civic.Request, _ *civic.Plan) FeasibilityVerdict {
	return FeasibilityVerdict{OK: true}
}
