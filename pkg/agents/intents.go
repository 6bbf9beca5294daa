package agents

import (
	"strings"

	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/rules"
)

// intentMap classifies request types into department intents. Unmapped types
// fall back to the finance catch-all.
var intentMap = map[string]civic.Intent{
	"schedule_shift_request":     rules.IntentNegotiateSchedule,
	"maintenance_request":        rules.IntentPerformMaintenance,
	"water_quality_report":       rules.IntentMonitorQuality,
	"pipeline_repair_request":    rules.IntentPerformMaintenance,
	"supply_interruption_notice": rules.IntentRespondInterruption,

	"project_planning":      rules.IntentPlanProject,
	"capacity_query":        rules.IntentAssessCapacity,
	"road_repair_request":   rules.IntentRepairRoad,
	"structural_assessment": rules.IntentAssessStructure,
	"permit_review":         rules.IntentReviewPermit,

	"fire_emergency":       rules.IntentRespondEmergency,
	"inspection_request":   rules.IntentConductInspection,
	"hazard_report":        rules.IntentAssessHazard,
	"equipment_deployment": rules.IntentDeployEquipment,

	"waste_collection_request": rules.IntentCollectWaste,
	"route_change_request":     rules.IntentAdjustRoute,
	"landfill_capacity_query":  rules.IntentAssessLandfill,
	"street_cleaning_request":  rules.IntentCleanStreets,

	"health_inspection_request": rules.IntentHealthInspection,
	"outbreak_alert":            rules.IntentManageOutbreak,
	"clinic_staffing_request":   rules.IntentStaffClinic,
	"vaccination_drive_plan":    rules.IntentPlanVaccination,

	"budget_allocation_request": rules.IntentAllocateBudget,
	"expenditure_approval":      rules.IntentApproveExpenditure,
	"grant_review":              rules.IntentReviewGrant,
	"audit_request":             rules.IntentConductAudit,
}

// IntentFor returns the deterministic intent classification.
func IntentFor(requestType string) civic.Intent {
	if intent, ok := intentMap[requestType]; ok {
		return intent
	}
	return rules.IntentGeneralReview
}

// emergencyTypes carry elevated baseline risk regardless of fields.
var baselineRisk = map[string]civic.RiskLevel{
	"fire_emergency":             civic.RiskHigh,
	"outbreak_alert":             civic.RiskHigh,
	"supply_interruption_notice": civic.RiskHigh,
	"hazard_report":              civic.RiskMedium,
	"pipeline_repair_request":    civic.RiskMedium,
	"road_repair_request":        civic.RiskMedium,
	"structural_assessment":      civic.RiskMedium,
	"equipment_deployment":       civic.RiskMedium,
	"clinic_staffing_request":    civic.RiskMedium,
}

// RiskFor grades a request deterministically. An explicit critical/high
// priority or severity field raises the grade; nothing lowers a baseline.
func RiskFor(req *civic.Request) civic.RiskLevel {
	risk, ok := baselineRisk[req.Type]
	if !ok {
		risk = civic.RiskLow
	}

	for _, field := range []string{"priority", "severity", "urgency"} {
		switch strings.ToLower(req.StringField(field)) {
		case "critical":
			return civic.RiskCritical
		case "high":
			if risk.Rank() < civic.RiskHigh.Rank() {
				risk = civic.RiskHigh
			}
		case "medium":
			if risk.Rank() < civic.RiskMedium.Rank() {
				risk = civic.RiskMedium
			}
		}
	}
	return risk
}
