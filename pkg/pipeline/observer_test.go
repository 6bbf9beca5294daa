package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/contextstore"
)

func TestDeriveObservations(t *testing.T) {
	snap := &contextstore.Snapshot{
		Location:        "Downtown",
		Shifts:          []contextstore.Shift{{Name: "evening", CrewsAssigned: 2, CrewsRequired: 4}},
		Crews:           contextstore.Crews{Available: 11, Baseline: 8},
		Assets:          []contextstore.Asset{{Name: "DT-P1", Kind: "pipeline", Condition: "fair"}},
		Projects:        []contextstore.Project{{Name: "relining", AgentType: civic.AgentWater}},
		BudgetRemaining: civic.Crore(2),
	}
	results := []civic.ToolResult{
		{Tool: "check_manpower", Output: map[string]any{"available": 11, "baseline": 8, "sufficient": true}},
		{Tool: "check_schedule", Output: map[string]any{"open_shift": "evening", "slack": 2}},
		{Tool: "check_budget", Output: map[string]any{"remaining": int64(civic.Crore(2))}},
		{Tool: "check_active_projects", Output: map[string]any{"count": 1}},
		{Tool: "check_incidents", Output: map[string]any{"count": 3, "major": 1}},
		{Tool: "check_pipeline_health", Output: map[string]any{"kind": "pipeline", "condition": "fair"}},
	}

	obs := deriveObservations(snap, results)

	assert.True(t, civic.Bool(obs.ManpowerSufficient, false))
	assert.True(t, civic.Bool(obs.AlternateShiftOpen, false))
	assert.Equal(t, 2, obs.ScheduleSlackDays)
	assert.Equal(t, civic.Crore(2), obs.BudgetRemaining)
	assert.True(t, civic.Bool(obs.BudgetSufficient, false))
	assert.Equal(t, 1, obs.ActiveProjects)
	assert.Equal(t, 3, obs.RecentIncidents)
	assert.Equal(t, "fair", obs.InfraCondition)
	assert.InDelta(t, 1.0, obs.DataCompleteness, 0.001)
	assert.False(t, obs.ContextDegraded)
}

func TestDeriveObservationsSkipsFailedTools(t *testing.T) {
	results := []civic.ToolResult{
		{Tool: "check_manpower", Error: "store unavailable"},
		{Tool: "check_schedule", Output: map[string]any{"open_shift": "", "slack": 0}},
	}

	obs := deriveObservations(nil, results)

	require.Nil(t, obs.ManpowerSufficient)
	require.NotNil(t, obs.AlternateShiftOpen)
	assert.False(t, *obs.AlternateShiftOpen)
}

func TestDeriveObservationsUnknownConditionIgnored(t *testing.T) {
	results := []civic.ToolResult{
		{Tool: "check_road_condition", Output: map[string]any{"kind": "road", "condition": "unknown"}},
		{Tool: "check_drainage", Output: map[string]any{"kind": "drain", "condition": "poor"}},
	}

	obs := deriveObservations(nil, results)
	assert.Equal(t, "poor", obs.InfraCondition)
}

func TestBudgetAgainstCost(t *testing.T) {
	obs := &civic.Observations{BudgetRemaining: civic.Lakh(80)}

	budgetAgainstCost(obs, civic.Lakh(50))
	assert.True(t, civic.Bool(obs.BudgetSufficient, false))

	budgetAgainstCost(obs, civic.Lakh(100))
	assert.False(t, civic.Bool(obs.BudgetSufficient, true))

	// unknown cost leaves the verdict untouched
	obs.BudgetSufficient = nil
	budgetAgainstCost(obs, 0)
	assert.Nil(t, obs.BudgetSufficient)
}

func TestWorstCondition(t *testing.T) {
	assert.Equal(t, "poor", worstCondition("fair", "poor"))
	assert.Equal(t, "critical", worstCondition("critical", "good"))
	assert.Equal(t, "good", worstCondition("", "good"))
}
