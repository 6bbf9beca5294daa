package rules

import "github.com/civicmind/civicmind/pkg/civic"

// Fire department intents.
const (
	IntentRespondEmergency  civic.Intent = "respond_emergency"
	IntentConductInspection civic.Intent = "conduct_inspection"
	IntentAssessHazard      civic.Intent = "assess_hazard"
	IntentDeployEquipment   civic.Intent = "deploy_equipment"
)

func fireEngine() *Engine {
	return &Engine{
		agent: civic.AgentFire,
		policies: Policies{
			MaxShiftDelayDays:        1,
			MinMaintenanceNoticeDays: 0,
			MaxConcurrentProjects:    6,
			MaxBudgetUtilization:     0.8,
			EmergencyIntents: map[civic.Intent]bool{
				IntentRespondEmergency: true,
				IntentDeployEquipment:  true,
			},
		},
		feasibility: map[civic.Intent]FeasibilityFunc{
			// Emergencies are always actionable; understaffing escalates via
			// risk, it does not block the response.
			IntentRespondEmergency:  alwaysFeasible,
			IntentConductInspection: fireInspectionFeasibility,
			IntentDeployEquipment: func(obs *civic.Observations, req *civic.Request, plan *civic.Plan) FeasibilityVerdict {
				if obs.InfraCondition == "critical" {
					return FeasibilityVerdict{Reason: "stationed equipment unserviceable"}
				}
				return baselineFeasibility(obs, req, plan)
			},
		},
	}
}

func fireInspectionFeasibility(obs *civic.Observations, req *civic.Request, plan *civic.Plan) FeasibilityVerdict {
	if !civic.Bool(obs.ManpowerSufficient, true) {
		if civic.Bool(obs.AlternateShiftOpen, false) && !planHasConstraint(plan, ConstraintUseOpenShift) {
			return FeasibilityVerdict{
				Reason:     "inspection teams committed on requested shift; another shift has capacity",
				Repairable: true,
				RepairHint: ConstraintUseOpenShift,
			}
		}
		return FeasibilityVerdict{Reason: "no inspection team available"}
	}
	return FeasibilityVerdict{OK: true}
}
