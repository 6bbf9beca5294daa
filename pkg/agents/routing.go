// Package agents binds the six department agents: the request-type routing
// table, intent classification and risk grading, required-field validation,
// and the deterministic plan templates each pipeline falls back on.
package agents

import (
	"fmt"
	"sort"

	"github.com/civicmind/civicmind/pkg/civic"
)

// requestTypeMap is the authoritative request-type → agent table. Keep this
// the single source of routing truth; nothing else may map request types.
// inspection_request belongs to Fire (safety inspections); Health owns the
// distinct health_inspection_request.
var requestTypeMap = map[string]civic.AgentType{
	// water
	"schedule_shift_request":      civic.AgentWater,
	"maintenance_request":         civic.AgentWater,
	"water_quality_report":        civic.AgentWater,
	"pipeline_repair_request":     civic.AgentWater,
	"supply_interruption_notice":  civic.AgentWater,
	// engineering
	"project_planning":      civic.AgentEngineering,
	"capacity_query":        civic.AgentEngineering,
	"road_repair_request":   civic.AgentEngineering,
	"structural_assessment": civic.AgentEngineering,
	"permit_review":         civic.AgentEngineering,
	// fire
	"fire_emergency":       civic.AgentFire,
	"inspection_request":   civic.AgentFire,
	"hazard_report":        civic.AgentFire,
	"equipment_deployment": civic.AgentFire,
	// sanitation
	"waste_collection_request": civic.AgentSanitation,
	"route_change_request":     civic.AgentSanitation,
	"landfill_capacity_query":  civic.AgentSanitation,
	"street_cleaning_request":  civic.AgentSanitation,
	// health
	"health_inspection_request": civic.AgentHealth,
	"outbreak_alert":            civic.AgentHealth,
	"clinic_staffing_request":   civic.AgentHealth,
	"vaccination_drive_plan":    civic.AgentHealth,
	// finance
	"budget_allocation_request": civic.AgentFinance,
	"expenditure_approval":      civic.AgentFinance,
	"grant_review":              civic.AgentFinance,
	"audit_request":             civic.AgentFinance,
}

// DefaultAgent receives request types no department claims. Finance is the
// default: every request has a cost dimension and Finance escalates readily.
const DefaultAgent = civic.AgentFinance

// AgentFor routes a request type. known=false means the default applied.
func AgentFor(requestType string) (agent civic.AgentType, known bool) {
	if a, ok := requestTypeMap[requestType]; ok {
		return a, true
	}
	return DefaultAgent, false
}

// AcceptedTypes lists the request types one agent claims, sorted.
func AcceptedTypes(agent civic.AgentType) []string {
	var types []string
	for t, a := range requestTypeMap {
		if a == agent {
			types = append(types, t)
		}
	}
	sort.Strings(types)
	return types
}

// requiredFields lists per-type fields validated at submission and again at
// pipeline Phase 1.
var requiredFields = map[string][]string{
	"schedule_shift_request":  {"requested_shift_days"},
	"maintenance_request":     {"notice_days"},
	"pipeline_repair_request": {"asset"},
	"fire_emergency":          {"priority"},
	"outbreak_alert":          {"disease"},
	"route_change_request":    {"route"},
	"expenditure_approval":    {"amount_lakh"},
}

// ValidateRequest checks the common shape plus per-type required fields.
func ValidateRequest(req *civic.Request) error {
	if req.Type == "" {
		return fmt.Errorf("request type is required")
	}
	if req.Location == "" {
		return fmt.Errorf("location is required")
	}
	for _, field := range requiredFields[req.Type] {
		if _, ok := req.Field(field); !ok {
			return fmt.Errorf("request type %q requires field %q", req.Type, field)
		}
	}
	return nil
}
