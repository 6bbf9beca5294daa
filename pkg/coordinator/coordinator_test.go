package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/config"
)

func testConfig() config.CoordinationConfig {
	return config.Default().Coordination
}

func activeDecision(agent civic.AgentType, location string, mutate ...func(*civic.CoordinationDecision)) *civic.CoordinationDecision {
	dec := &civic.CoordinationDecision{
		ID:        "dec-" + string(agent),
		AgentType: agent,
		Location:  location,
		Status:    civic.CoordinationActive,
		CreatedAt: time.Now().UTC(),
	}
	for _, fn := range mutate {
		fn(dec)
	}
	return dec
}

func TestCleanCheckCommitsAndProceeds(t *testing.T) {
	store := NewMemoryDecisionStore()
	c := New(store, nil, testConfig())
	ctx := context.Background()

	req := &civic.Request{Type: "maintenance_request", Location: "Downtown"}
	plan := &civic.Plan{Summary: "valve replacement", EstimatedCost: civic.Lakh(5)}

	verdict, err := c.CheckPlanConflicts(ctx, civic.AgentWater, req, plan)
	require.NoError(t, err)
	assert.Equal(t, civic.VerdictProceed, verdict.Kind)
	require.NotEmpty(t, verdict.DecisionID)

	dec, err := store.Get(ctx, verdict.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, civic.CoordinationActive, dec.Status)
	assert.Equal(t, civic.AgentWater, dec.AgentType)
	assert.Equal(t, civic.Lakh(5), dec.EstimatedCost)
	assert.Equal(t, "valve replacement", dec.PlanSummary)
}

func TestLocationConflictRetries(t *testing.T) {
	store := NewMemoryDecisionStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, activeDecision(civic.AgentEngineering, "Downtown")))

	c := New(store, nil, testConfig())
	req := &civic.Request{Type: "maintenance_request", Location: "Downtown"}

	verdict, err := c.CheckPlanConflicts(ctx, civic.AgentWater, req, &civic.Plan{})
	require.NoError(t, err)
	assert.Equal(t, civic.VerdictRetry, verdict.Kind)
	require.Len(t, verdict.Conflicts, 1)
	assert.Equal(t, civic.ConflictLocation, verdict.Conflicts[0].Kind)
	assert.NotEmpty(t, verdict.Recommendations)
	assert.Empty(t, verdict.DecisionID)
}

func TestSameAgentAtSameLocationIsNotAConflict(t *testing.T) {
	store := NewMemoryDecisionStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, activeDecision(civic.AgentWater, "Downtown")))

	c := New(store, nil, testConfig())
	req := &civic.Request{Type: "maintenance_request", Location: "downtown"}

	verdict, err := c.CheckPlanConflicts(ctx, civic.AgentWater, req, &civic.Plan{})
	require.NoError(t, err)
	assert.Equal(t, civic.VerdictProceed, verdict.Kind)
}

func TestResourceConflictRetries(t *testing.T) {
	store := NewMemoryDecisionStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, activeDecision(civic.AgentEngineering, "Riverside",
		func(d *civic.CoordinationDecision) { d.ResourcesNeeded = []string{"crane-1", "crew-bus"} })))

	c := New(store, nil, testConfig())
	req := &civic.Request{Type: "maintenance_request", Location: "Downtown", ResourcesNeeded: []string{"crane-1"}}

	verdict, err := c.CheckPlanConflicts(ctx, civic.AgentWater, req, &civic.Plan{})
	require.NoError(t, err)
	assert.Equal(t, civic.VerdictRetry, verdict.Kind)
	require.Len(t, verdict.Conflicts, 1)
	assert.Equal(t, civic.ConflictResource, verdict.Conflicts[0].Kind)
}

func TestCircularDependencyEscalates(t *testing.T) {
	store := NewMemoryDecisionStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, activeDecision(civic.AgentEngineering, "Riverside",
		func(d *civic.CoordinationDecision) { d.WaitsFor = []civic.AgentType{civic.AgentWater} })))

	c := New(store, nil, testConfig())
	req := &civic.Request{Type: "maintenance_request", Location: "Downtown"}
	plan := &civic.Plan{WaitsFor: []civic.AgentType{civic.AgentEngineering}}

	verdict, err := c.CheckPlanConflicts(ctx, civic.AgentWater, req, plan)
	require.NoError(t, err)
	assert.Equal(t, civic.VerdictEscalate, verdict.Kind)
	assert.True(t, verdict.RequiresHuman)
	assert.Nil(t, verdict.Human)
	require.Len(t, verdict.Conflicts, 1)
	assert.Equal(t, civic.ConflictCircular, verdict.Conflicts[0].Kind)
}

func TestCostAboveLimitEscalatesOnConflict(t *testing.T) {
	store := NewMemoryDecisionStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, activeDecision(civic.AgentEngineering, "Downtown")))

	c := New(store, nil, testConfig())
	req := &civic.Request{Type: "project_planning", Location: "Downtown", EstimatedCost: civic.Lakh(60)}

	verdict, err := c.CheckPlanConflicts(ctx, civic.AgentWater, req, &civic.Plan{})
	require.NoError(t, err)
	assert.Equal(t, civic.VerdictEscalate, verdict.Kind)
	assert.True(t, verdict.RequiresHuman)
}

func TestAutoApproveConvertsEscalationToProceed(t *testing.T) {
	store := NewMemoryDecisionStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, activeDecision(civic.AgentEngineering, "Downtown")))

	c := New(store, AutoApprove{}, testConfig())
	req := &civic.Request{Type: "project_planning", Location: "Downtown", EstimatedCost: civic.Lakh(60)}

	verdict, err := c.CheckPlanConflicts(ctx, civic.AgentWater, req, &civic.Plan{Summary: "flyover footing"})
	require.NoError(t, err)
	assert.Equal(t, civic.VerdictProceed, verdict.Kind)
	assert.False(t, verdict.RequiresHuman)
	require.NotNil(t, verdict.Human)
	assert.Equal(t, "approve", verdict.Human.Choice)
	require.NotEmpty(t, verdict.DecisionID)

	dec, err := store.Get(ctx, verdict.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, civic.CoordinationActive, dec.Status)
}

// rejecter answers every escalation with a rejection.
type rejecter struct{}

func (rejecter) Decide(context.Context, civic.AgentType, *civic.Request, []civic.Conflict) (*civic.HumanDecision, error) {
	return &civic.HumanDecision{
		Choice:    "reject",
		Approver:  "ops-desk",
		Timestamp: time.Now().UTC(),
	}, nil
}

func TestRejectingInterventionStaysEscalated(t *testing.T) {
	store := NewMemoryDecisionStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, activeDecision(civic.AgentEngineering, "Downtown")))

	c := New(store, rejecter{}, testConfig())
	req := &civic.Request{Type: "project_planning", Location: "Downtown", EstimatedCost: civic.Lakh(60)}

	verdict, err := c.CheckPlanConflicts(ctx, civic.AgentWater, req, &civic.Plan{})
	require.NoError(t, err)
	assert.Equal(t, civic.VerdictEscalate, verdict.Kind)
	require.NotNil(t, verdict.Human)
	assert.Equal(t, "reject", verdict.Human.Choice)
	assert.Equal(t, "ops-desk", verdict.Human.Approver)
	assert.Empty(t, verdict.DecisionID)

	// the rejected plan commits nothing
	active, err := store.Active(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, civic.AgentEngineering, active[0].AgentType)
}

func TestBudgetCeilingConflict(t *testing.T) {
	cfg := testConfig()
	store := NewMemoryDecisionStore()
	ctx := context.Background()

	// commit most of the ceiling from another location so only the budget
	// rule can fire
	require.NoError(t, store.Insert(ctx, activeDecision(civic.AgentEngineering, "Riverside",
		func(d *civic.CoordinationDecision) { d.EstimatedCost = civic.Lakh(980) })))

	c := New(store, nil, cfg)
	req := &civic.Request{Type: "maintenance_request", Location: "Downtown", EstimatedCost: civic.Lakh(30)}

	verdict, err := c.CheckPlanConflicts(ctx, civic.AgentWater, req, &civic.Plan{})
	require.NoError(t, err)
	assert.Equal(t, civic.VerdictRetry, verdict.Kind)
	require.Len(t, verdict.Conflicts, 1)
	assert.Equal(t, civic.ConflictBudget, verdict.Conflicts[0].Kind)
	assert.Contains(t, verdict.Recommendations, "reduce plan cost below the remaining fiscal headroom")
}

func TestStaleDecisionsAreSuperseded(t *testing.T) {
	store := NewMemoryDecisionStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, activeDecision(civic.AgentEngineering, "Downtown",
		func(d *civic.CoordinationDecision) { d.CreatedAt = time.Now().Add(-25 * time.Hour) })))

	c := New(store, nil, testConfig())
	req := &civic.Request{Type: "maintenance_request", Location: "Downtown"}

	verdict, err := c.CheckPlanConflicts(ctx, civic.AgentWater, req, &civic.Plan{})
	require.NoError(t, err)
	assert.Equal(t, civic.VerdictProceed, verdict.Kind)

	stale, err := store.Get(ctx, "dec-engineering")
	require.NoError(t, err)
	assert.Equal(t, civic.CoordinationSuperseded, stale.Status)
}

func TestRecordOutcomeIsIdempotent(t *testing.T) {
	store := NewMemoryDecisionStore()
	c := New(store, nil, testConfig())
	ctx := context.Background()

	verdict, err := c.CheckPlanConflicts(ctx, civic.AgentWater,
		&civic.Request{Type: "maintenance_request", Location: "Downtown"}, &civic.Plan{})
	require.NoError(t, err)

	require.NoError(t, c.RecordOutcome(ctx, verdict.DecisionID, "audit-1", civic.DecisionRecommend))
	require.NoError(t, c.RecordOutcome(ctx, verdict.DecisionID, "audit-1", civic.DecisionRecommend))

	dec, err := store.Get(ctx, verdict.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, civic.CoordinationCompleted, dec.Status)

	assert.ErrorIs(t, c.RecordOutcome(ctx, "no-such-id", "audit-1", civic.DecisionRecommend), ErrNotFound)
}

func TestConcurrentChecksForOneLocationSerialize(t *testing.T) {
	store := NewMemoryDecisionStore()
	c := New(store, nil, testConfig())
	ctx := context.Background()

	verdicts := make([]*civic.Verdict, 2)
	var wg sync.WaitGroup
	for i, agent := range []civic.AgentType{civic.AgentWater, civic.AgentEngineering} {
		wg.Add(1)
		go func(i int, agent civic.AgentType) {
			defer wg.Done()
			req := &civic.Request{Type: "maintenance_request", Location: "Downtown"}
			v, err := c.CheckPlanConflicts(ctx, agent, req, &civic.Plan{})
			assert.NoError(t, err)
			verdicts[i] = v
		}(i, agent)
	}
	wg.Wait()

	proceeds := 0
	for _, v := range verdicts {
		if v != nil && v.Kind == civic.VerdictProceed {
			proceeds++
		}
	}
	assert.Equal(t, 1, proceeds, "exactly one agent may pass an identical check")

	active, err := store.Active(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
