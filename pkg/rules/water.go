package rules

import "github.com/civicmind/civicmind/pkg/civic"

// Water department intents.
const (
	IntentNegotiateSchedule   civic.Intent = "negotiate_schedule"
	IntentPerformMaintenance  civic.Intent = "perform_maintenance"
	IntentMonitorQuality      civic.Intent = "monitor_quality"
	IntentRespondInterruption civic.Intent = "respond_interruption"
)

func waterEngine() *Engine {
	return &Engine{
		agent: civic.AgentWater,
		policies: Policies{
			MaxShiftDelayDays:        3,
			MinMaintenanceNoticeDays: 2,
			MaxConcurrentProjects:    4,
			MaxBudgetUtilization:     0.6,
			EmergencyIntents: map[civic.Intent]bool{
				IntentRespondInterruption: true,
			},
		},
		feasibility: map[civic.Intent]FeasibilityFunc{
			IntentNegotiateSchedule:  waterScheduleFeasibility,
			IntentPerformMaintenance: waterMaintenanceFeasibility,
			IntentMonitorQuality: func(obs *civic.Observations, _ *civic.Request, _ *civic.Plan) FeasibilityVerdict {
				// Quality monitoring is a desk review; only a dead context
				// blocks it.
				if obs.ContextDegraded && obs.DataCompleteness == 0 {
					return FeasibilityVerdict{Reason: "no context data available for quality review"}
				}
				return FeasibilityVerdict{OK: true}
			},
		},
	}
}

func waterScheduleFeasibility(obs *civic.Observations, req *civic.Request, plan *civic.Plan) FeasibilityVerdict {
	if base := baselineFeasibility(obs, req, plan); !base.OK {
		return base
	}
	// A shift move needs somewhere to move to when the requested slot is full.
	if !civic.Bool(obs.ManpowerSufficient, true) && obs.ScheduleSlackDays == 0 && !civic.Bool(obs.AlternateShiftOpen, false) {
		return FeasibilityVerdict{Reason: "no schedule slack to absorb the shift change"}
	}
	return FeasibilityVerdict{OK: true}
}

func waterMaintenanceFeasibility(obs *civic.Observations, req *civic.Request, plan *civic.Plan) FeasibilityVerdict {
	if base := baselineFeasibility(obs, req, plan); !base.OK {
		return base
	}
	// Maintenance on a critically degraded main needs an isolation window,
	// not a routine crew visit.
	if obs.InfraCondition == "critical" {
		return FeasibilityVerdict{Reason: "pipeline condition critical; requires supply isolation beyond routine maintenance"}
	}
	return FeasibilityVerdict{OK: true}
}
