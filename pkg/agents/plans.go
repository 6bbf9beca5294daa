package agents

import (
	"fmt"

	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/rules"
)

// planSteps names the tool sequence of the deterministic plan template for
// an intent. Tools not present in the department registry are dropped at
// build time, so shared templates stay valid across departments.
var planSteps = map[civic.Intent][]string{
	rules.IntentNegotiateSchedule:   {"check_manpower", "check_schedule", "check_budget"},
	rules.IntentPerformMaintenance:  {"check_manpower", "check_schedule", "check_pipeline_health", "check_budget"},
	rules.IntentMonitorQuality:      {"check_pipeline_health", "check_incidents"},
	rules.IntentRespondInterruption: {"check_manpower", "check_pipeline_health", "check_incidents"},

	rules.IntentPlanProject:     {"check_active_projects", "check_budget", "check_manpower"},
	rules.IntentAssessCapacity:  {"check_active_projects", "check_manpower", "check_budget"},
	rules.IntentRepairRoad:      {"check_road_condition", "check_manpower", "check_budget"},
	rules.IntentAssessStructure: {"check_road_condition", "check_incidents"},
	rules.IntentReviewPermit:    {"check_active_projects", "check_incidents"},

	rules.IntentRespondEmergency:  {"check_manpower", "check_equipment", "check_hydrants"},
	rules.IntentConductInspection: {"check_manpower", "check_schedule", "check_incidents"},
	rules.IntentAssessHazard:      {"check_incidents", "check_hydrants"},
	rules.IntentDeployEquipment:   {"check_equipment", "check_manpower"},

	rules.IntentCollectWaste:   {"check_manpower", "check_schedule"},
	rules.IntentAdjustRoute:    {"check_manpower", "check_incidents", "check_schedule"},
	rules.IntentAssessLandfill: {"check_active_projects", "check_budget"},
	rules.IntentCleanStreets:   {"check_manpower", "check_schedule", "check_drainage"},

	rules.IntentHealthInspection: {"check_manpower", "check_incidents"},
	rules.IntentManageOutbreak:   {"check_manpower", "check_clinic_capacity", "check_incidents"},
	rules.IntentStaffClinic:      {"check_clinic_capacity", "check_manpower", "check_schedule"},
	rules.IntentPlanVaccination:  {"check_clinic_capacity", "check_manpower", "check_budget"},

	rules.IntentAllocateBudget:     {"check_budget", "check_active_projects"},
	rules.IntentApproveExpenditure: {"check_budget"},
	rules.IntentReviewGrant:        {"check_budget", "check_active_projects"},
	rules.IntentConductAudit:       {"check_budget", "check_active_projects", "check_incidents"},
	rules.IntentGeneralReview:      {"check_budget", "check_incidents"},
}

// expectedDuration gives the template's duration estimate per intent class.
func expectedDuration(intent civic.Intent) string {
	switch intent {
	case rules.IntentRespondEmergency, rules.IntentManageOutbreak, rules.IntentRespondInterruption:
		return "immediate"
	case rules.IntentPlanProject, rules.IntentPlanVaccination:
		return "2-4 weeks"
	default:
		return "1-3 days"
	}
}

// FallbackPlan builds the deterministic plan template for an intent. It is
// the planner's answer when the LLM is disabled or returns nothing usable,
// and the base the checkpoint-retry constraints are merged into.
func (d *Department) FallbackPlan(intent civic.Intent, req *civic.Request, constraints []string) *civic.Plan {
	stepNames, ok := planSteps[intent]
	if !ok {
		stepNames = []string{"check_budget", "check_incidents"}
	}

	var steps []civic.PlanStep
	for _, name := range stepNames {
		if _, registered := d.Tools.Get(name); !registered {
			continue
		}
		steps = append(steps, civic.PlanStep{
			Tool: name,
			Args: map[string]any{"location": req.Location},
		})
	}

	return &civic.Plan{
		Steps:            steps,
		Constraints:      constraints,
		ExpectedDuration: expectedDuration(intent),
		EstimatedCost:    req.EstimatedCost,
		Summary:          fmt.Sprintf("%s at %s (%s)", intent, req.Location, req.Type),
	}
}

// goalTemplates provides the deterministic goal statement per intent.
var goalTemplates = map[civic.Intent]string{
	rules.IntentNegotiateSchedule:   "Reschedule the requested shift at %s without dropping below staffing baseline.",
	rules.IntentPerformMaintenance:  "Complete the requested maintenance at %s within the notice window.",
	rules.IntentMonitorQuality:      "Assess reported water quality at %s and determine follow-up.",
	rules.IntentRespondInterruption: "Restore supply at %s and contain the interruption impact.",
	rules.IntentPlanProject:         "Scope the proposed project at %s within budget and slot limits.",
	rules.IntentAssessCapacity:      "Report current works capacity at %s.",
	rules.IntentRepairRoad:          "Schedule the road repair at %s with available crews.",
	rules.IntentRespondEmergency:    "Dispatch emergency response to %s immediately.",
	rules.IntentConductInspection:   "Complete the safety inspection at %s on an available shift.",
	rules.IntentManageOutbreak:      "Contain the reported outbreak around %s.",
	rules.IntentAllocateBudget:      "Allocate the requested budget for %s within utilization limits.",
	rules.IntentApproveExpenditure:  "Verify and approve the expenditure for %s.",
	rules.IntentGeneralReview:       "Review the unclassified request for %s and route appropriately.",
}

// FallbackGoal renders the goal statement and success criteria for an intent.
func FallbackGoal(intent civic.Intent, req *civic.Request) (goal string, criteria []string) {
	tpl, ok := goalTemplates[intent]
	if !ok {
		tpl = "Resolve the " + string(intent) + " request at %s."
	}
	goal = fmt.Sprintf(tpl, req.Location)
	criteria = []string{
		"all plan steps executed",
		"department policy constants respected",
		"no unresolved cross-department conflicts",
	}
	return goal, criteria
}
