package rules

import "github.com/civicmind/civicmind/pkg/civic"

// Health department intents.
const (
	IntentHealthInspection civic.Intent = "health_inspection"
	IntentManageOutbreak   civic.Intent = "manage_outbreak"
	IntentStaffClinic      civic.Intent = "staff_clinic"
	IntentPlanVaccination  civic.Intent = "plan_vaccination"
)

func healthEngine() *Engine {
	return &Engine{
		agent: civic.AgentHealth,
		policies: Policies{
			MaxShiftDelayDays:        2,
			MinMaintenanceNoticeDays: 0,
			MaxConcurrentProjects:    4,
			MaxBudgetUtilization:     0.7,
			EmergencyIntents: map[civic.Intent]bool{
				IntentManageOutbreak: true,
			},
		},
		feasibility: map[civic.Intent]FeasibilityFunc{
			IntentManageOutbreak: alwaysFeasible,
			IntentStaffClinic: func(obs *civic.Observations, req *civic.Request, plan *civic.Plan) FeasibilityVerdict {
				if base := baselineFeasibility(obs, req, plan); !base.OK {
					return base
				}
				if obs.InfraCondition == "critical" {
					return FeasibilityVerdict{Reason: "clinic facility unusable; staffing it resolves nothing"}
				}
				return FeasibilityVerdict{OK: true}
			},
			IntentPlanVaccination: func(obs *civic.Observations, req *civic.Request, plan *civic.Plan) FeasibilityVerdict {
				if base := baselineFeasibility(obs, req, plan); !base.OK {
					return base
				}
				return FeasibilityVerdict{OK: true}
			},
		},
	}
}
