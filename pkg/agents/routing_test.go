package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/contextstore"
	"github.com/civicmind/civicmind/pkg/rules"
)

func TestAgentFor(t *testing.T) {
	tests := []struct {
		requestType string
		agent       civic.AgentType
		known       bool
	}{
		{"schedule_shift_request", civic.AgentWater, true},
		{"road_repair_request", civic.AgentEngineering, true},
		{"fire_emergency", civic.AgentFire, true},
		{"inspection_request", civic.AgentFire, true},
		{"health_inspection_request", civic.AgentHealth, true},
		{"route_change_request", civic.AgentSanitation, true},
		{"audit_request", civic.AgentFinance, true},
		{"parade_permit", civic.AgentFinance, false},
	}
	for _, tt := range tests {
		agent, known := AgentFor(tt.requestType)
		assert.Equal(t, tt.agent, agent, tt.requestType)
		assert.Equal(t, tt.known, known, tt.requestType)
	}
}

func TestEveryAgentClaimsTypes(t *testing.T) {
	for _, agent := range civic.AgentTypes() {
		assert.NotEmpty(t, AcceptedTypes(agent), "agent %s claims no request types", agent)
	}
}

func TestValidateRequest(t *testing.T) {
	req := &civic.Request{Type: "schedule_shift_request", Location: "Downtown"}
	err := ValidateRequest(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requested_shift_days")

	req.Fields = map[string]any{"requested_shift_days": 2}
	assert.NoError(t, ValidateRequest(req))

	assert.Error(t, ValidateRequest(&civic.Request{Type: "audit_request"}))
	assert.Error(t, ValidateRequest(&civic.Request{Location: "Downtown"}))
}

func TestIntentFor(t *testing.T) {
	assert.Equal(t, rules.IntentNegotiateSchedule, IntentFor("schedule_shift_request"))
	assert.Equal(t, rules.IntentRespondEmergency, IntentFor("fire_emergency"))
	assert.Equal(t, rules.IntentGeneralReview, IntentFor("parade_permit"))
}

func TestRiskFor(t *testing.T) {
	low := &civic.Request{Type: "capacity_query", Location: "Downtown"}
	assert.Equal(t, civic.RiskLow, RiskFor(low))

	baseline := &civic.Request{Type: "fire_emergency", Location: "Downtown"}
	assert.Equal(t, civic.RiskHigh, RiskFor(baseline))

	critical := &civic.Request{
		Type:     "fire_emergency",
		Location: "Downtown",
		Fields:   map[string]any{"priority": "critical"},
	}
	assert.Equal(t, civic.RiskCritical, RiskFor(critical))

	// explicit low priority never lowers a baseline grade
	lowered := &civic.Request{
		Type:     "outbreak_alert",
		Location: "Downtown",
		Fields:   map[string]any{"priority": "low"},
	}
	assert.Equal(t, civic.RiskHigh, RiskFor(lowered))
}

func TestFallbackPlanUsesRegisteredToolsOnly(t *testing.T) {
	store := contextstore.Seeded()
	reg := NewRegistry(store)

	water, err := reg.Get(civic.AgentWater)
	require.NoError(t, err)

	req := &civic.Request{Type: "maintenance_request", Location: "Downtown"}
	plan := water.FallbackPlan(rules.IntentPerformMaintenance, req, []string{rules.ConstraintUseOpenShift})

	require.NotEmpty(t, plan.Steps)
	for _, step := range plan.Steps {
		_, ok := water.Tools.Get(step.Tool)
		assert.True(t, ok, "plan references unregistered tool %s", step.Tool)
		assert.Equal(t, "Downtown", step.Args["location"])
	}
	assert.Contains(t, plan.Constraints, rules.ConstraintUseOpenShift)
}

func TestFallbackPlanUnknownIntent(t *testing.T) {
	store := contextstore.Seeded()
	finance := NewDepartment(civic.AgentFinance, store)

	req := &civic.Request{Type: "parade_permit", Location: "Riverside"}
	plan := finance.FallbackPlan(civic.Intent("no_such_intent"), req, nil)
	require.NotEmpty(t, plan.Steps)
}
