package pipeline

import (
	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/contextstore"
)

// deriveObservations is the deterministic observer: it folds raw tool output
// and the context snapshot into the flat record the rules engine consumes.
// Fields no executed tool spoke to stay nil.
func deriveObservations(snap *contextstore.Snapshot, results []civic.ToolResult) *civic.Observations {
	obs := &civic.Observations{}

	if snap != nil {
		obs.ContextDegraded = snap.Degraded
		obs.DataCompleteness = snap.Completeness()
	}

	for _, r := range results {
		if r.Error != "" || r.Output == nil {
			continue
		}
		switch r.Tool {
		case "check_manpower":
			if v, ok := r.Output["sufficient"].(bool); ok {
				obs.ManpowerSufficient = civic.BoolPtr(v)
			}
		case "check_schedule":
			if v, ok := r.Output["open_shift"].(string); ok {
				obs.AlternateShiftOpen = civic.BoolPtr(v != "")
			}
			obs.ScheduleSlackDays = intOutput(r.Output, "slack")
		case "check_budget":
			remaining := civic.Money(int64Output(r.Output, "remaining"))
			obs.BudgetRemaining = remaining
			obs.BudgetSufficient = civic.BoolPtr(remaining > 0)
		case "check_active_projects":
			obs.ActiveProjects = intOutput(r.Output, "count")
		case "check_incidents":
			obs.RecentIncidents = intOutput(r.Output, "count")
		case "check_equipment":
			if v, ok := r.Output["condition"].(string); ok {
				ready := v == "good" || v == "fair"
				obs.EquipmentAvailable = civic.BoolPtr(ready)
				if ready {
					obs.EmergencyUnitsReady = 1
				}
			}
		default:
			// asset-health tools share the condition output shape
			if v, ok := r.Output["condition"].(string); ok && v != "unknown" {
				obs.InfraCondition = worstCondition(obs.InfraCondition, v)
			}
		}
	}
	return obs
}

// budgetAgainstCost refines BudgetSufficient once the plan cost is known.
func budgetAgainstCost(obs *civic.Observations, cost civic.Money) {
	if obs.BudgetRemaining > 0 && cost > 0 {
		obs.BudgetSufficient = civic.BoolPtr(cost <= obs.BudgetRemaining)
	}
}

var conditionRank = map[string]int{"good": 0, "fair": 1, "poor": 2, "critical": 3}

func worstCondition(a, b string) string {
	if a == "" {
		return b
	}
	if conditionRank[b] > conditionRank[a] {
		return b
	}
	return a
}

func intOutput(out map[string]any, key string) int {
	switch v := out[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func int64Output(out map[string]any, key string) int64 {
	switch v := out[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
