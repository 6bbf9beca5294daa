package tools

import (
	"context"
	"fmt"

	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/contextstore"
)

// snapshotTool builds a tool that reads the location snapshot and derives
// its output with fn. The location comes from the step args, falling back to
// the request's location which the executor injects.
func snapshotTool(store contextstore.Store, name, description string, fn func(*contextstore.Snapshot) map[string]any) Tool {
	return Func{
		Meta: Info{Name: name, Description: description, Args: []string{"location"}},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			location := StringArg(args, "location", "")
			if location == "" {
				return nil, fmt.Errorf("%s: location argument is required", name)
			}
			snap, err := store.Snapshot(ctx, location)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			return fn(snap), nil
		},
	}
}

func manpowerTool(store contextstore.Store) Tool {
	return snapshotTool(store, "check_manpower",
		"Crew availability at the location versus the staffing baseline.",
		func(snap *contextstore.Snapshot) map[string]any {
			return map[string]any{
				"available":  snap.Crews.Available,
				"baseline":   snap.Crews.Baseline,
				"sufficient": snap.Crews.Baseline > 0 && snap.Crews.Available >= snap.Crews.Baseline,
			}
		})
}

func scheduleTool(store contextstore.Store) Tool {
	return snapshotTool(store, "check_schedule",
		"Shift slots at the location and whether any shift has spare capacity.",
		func(snap *contextstore.Snapshot) map[string]any {
			openShift := ""
			slack := 0
			shifts := make([]map[string]any, 0, len(snap.Shifts))
			for _, sh := range snap.Shifts {
				shifts = append(shifts, map[string]any{
					"name": sh.Name, "crews_assigned": sh.CrewsAssigned, "crews_required": sh.CrewsRequired,
				})
				if sh.Open() {
					if openShift == "" {
						openShift = sh.Name
					}
					slack += sh.CrewsRequired - sh.CrewsAssigned
				}
			}
			return map[string]any{"shifts": shifts, "open_shift": openShift, "slack": slack}
		})
}

func budgetTool(store contextstore.Store) Tool {
	return snapshotTool(store, "check_budget",
		"Remaining departmental budget for the location.",
		func(snap *contextstore.Snapshot) map[string]any {
			return map[string]any{
				"remaining":      int64(snap.BudgetRemaining),
				"remaining_lakh": snap.BudgetRemaining.Lakhs(),
			}
		})
}

func activeProjectsTool(store contextstore.Store) Tool {
	return snapshotTool(store, "check_active_projects",
		"Works projects currently in progress at the location.",
		func(snap *contextstore.Snapshot) map[string]any {
			projects := make([]map[string]any, 0, len(snap.Projects))
			for _, p := range snap.Projects {
				projects = append(projects, map[string]any{
					"name": p.Name, "agent_type": string(p.AgentType), "status": p.Status,
				})
			}
			return map[string]any{"count": len(snap.Projects), "projects": projects}
		})
}

func incidentsTool(store contextstore.Store) Tool {
	return snapshotTool(store, "check_incidents",
		"Recent recorded incidents at the location.",
		func(snap *contextstore.Snapshot) map[string]any {
			incidents := make([]map[string]any, 0, len(snap.Incidents))
			major := 0
			for _, in := range snap.Incidents {
				incidents = append(incidents, map[string]any{
					"kind": in.Kind, "severity": in.Severity,
				})
				if in.Severity == "major" || in.Severity == "critical" {
					major++
				}
			}
			return map[string]any{"count": len(snap.Incidents), "major": major, "incidents": incidents}
		})
}

// assetHealthTool reads the worst condition of assets of one kind.
func assetHealthTool(store contextstore.Store, name, kind, description string) Tool {
	return snapshotTool(store, name, description,
		func(snap *contextstore.Snapshot) map[string]any {
			condition := snap.WorstAssetCondition(kind)
			if condition == "" {
				condition = "unknown"
			}
			return map[string]any{"kind": kind, "condition": condition}
		})
}

// NewRegistryFor builds the tool registry for one department agent. All
// departments share the staffing/budget/incident primitives; the
// asset-health query is bound to the department's infrastructure kind.
func NewRegistryFor(agent civic.AgentType, store contextstore.Store) *Registry {
	r := NewRegistry()
	r.Register(manpowerTool(store))
	r.Register(scheduleTool(store))
	r.Register(budgetTool(store))
	r.Register(activeProjectsTool(store))
	r.Register(incidentsTool(store))

	switch agent {
	case civic.AgentWater:
		r.Register(assetHealthTool(store, "check_pipeline_health", "pipeline",
			"Worst recorded condition among water pipelines at the location."))
	case civic.AgentEngineering:
		r.Register(assetHealthTool(store, "check_road_condition", "road",
			"Worst recorded condition among roads at the location."))
	case civic.AgentFire:
		r.Register(assetHealthTool(store, "check_hydrants", "hydrant",
			"Worst recorded condition among fire hydrants at the location."))
		r.Register(assetHealthTool(store, "check_equipment", "fire_engine",
			"Readiness of stationed fire response equipment."))
	case civic.AgentSanitation:
		r.Register(assetHealthTool(store, "check_drainage", "drain",
			"Worst recorded condition among storm drains at the location."))
	case civic.AgentHealth:
		r.Register(assetHealthTool(store, "check_clinic_capacity", "clinic",
			"Condition and capacity of clinics serving the location."))
	case civic.AgentFinance:
		// Finance plans over the shared primitives only.
	}
	return r
}
