package rules

import "github.com/civicmind/civicmind/pkg/civic"

// Sanitation department intents.
const (
	IntentCollectWaste        civic.Intent = "collect_waste"
	IntentAdjustRoute         civic.Intent = "adjust_route"
	IntentAssessLandfill      civic.Intent = "assess_landfill"
	IntentCleanStreets        civic.Intent = "clean_streets"
)

func sanitationEngine() *Engine {
	return &Engine{
		agent: civic.AgentSanitation,
		policies: Policies{
			MaxShiftDelayDays:        2,
			MinMaintenanceNoticeDays: 1,
			MaxConcurrentProjects:    5,
			MaxBudgetUtilization:     0.6,
			EmergencyIntents:         map[civic.Intent]bool{},
		},
		feasibility: map[civic.Intent]FeasibilityFunc{
			IntentAssessLandfill: alwaysFeasible,
			IntentAdjustRoute: func(obs *civic.Observations, req *civic.Request, plan *civic.Plan) FeasibilityVerdict {
				if base := baselineFeasibility(obs, req, plan); !base.OK {
					return base
				}
				// Route changes during active major incidents strand
				// collection points mid-cycle.
				if obs.RecentIncidents > 2 {
					return FeasibilityVerdict{Reason: "too many active incidents on the route to re-sequence safely"}
				}
				return FeasibilityVerdict{OK: true}
			},
		},
	}
}
