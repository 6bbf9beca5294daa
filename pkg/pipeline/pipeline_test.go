package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicmind/civicmind/pkg/agents"
	"github.com/civicmind/civicmind/pkg/audit"
	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/config"
	"github.com/civicmind/civicmind/pkg/contextstore"
	"github.com/civicmind/civicmind/pkg/coordinator"
	"github.com/civicmind/civicmind/pkg/rules"
)

// env bundles one agent's pipeline over in-memory stores.
type env struct {
	store     *contextstore.MemoryStore
	auditLog  *audit.MemoryStore
	decisions *coordinator.MemoryDecisionStore
	pipe      *Pipeline
}

func newEnv(t *testing.T, agent civic.AgentType) *env {
	t.Helper()
	cfg := config.Default()
	e := &env{
		store:     contextstore.Seeded(),
		auditLog:  audit.NewMemoryStore(),
		decisions: coordinator.NewMemoryDecisionStore(),
	}
	coord := coordinator.New(e.decisions, nil, cfg.Coordination)
	dept := agents.NewDepartment(agent, e.store)
	e.pipe = New(dept, nil, e.store, coord, e.auditLog, nil, nil, cfg.Pipeline)
	return e
}

func shiftRequest(location string, days int) *civic.Request {
	return &civic.Request{
		Type:     "schedule_shift_request",
		Location: location,
		Fields:   map[string]any{"requested_shift_days": days},
	}
}

func TestRoutineShiftRequestRecommends(t *testing.T) {
	e := newEnv(t, civic.AgentWater)
	ctx := context.Background()

	out, err := e.pipe.Run(ctx, "job-1", shiftRequest("Downtown", 2))
	require.NoError(t, err)

	assert.Equal(t, civic.DecisionRecommend, out.Decision)
	assert.GreaterOrEqual(t, out.Confidence, 0.8)
	assert.True(t, out.Feasible)
	assert.True(t, out.PolicyOK)
	assert.Zero(t, out.Retries)
	assert.False(t, out.Degraded)
	assert.False(t, out.RequiresHuman)
	assert.Equal(t, rules.IntentNegotiateSchedule, out.Intent)
	require.NotNil(t, out.Plan)
	assert.NotEmpty(t, out.Plan.Steps)

	// exactly one audit record, carrying the decision
	rec, err := e.auditLog.ByJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, civic.DecisionRecommend, rec.Decision)
	assert.Equal(t, out.AuditID, rec.ID)
	assert.NotEmpty(t, rec.CoordinationID)
	assert.NotEmpty(t, rec.PoliciesReferenced)

	// the coordination decision is settled, not left active
	dec, err := e.decisions.Get(ctx, rec.CoordinationID)
	require.NoError(t, err)
	assert.Equal(t, civic.CoordinationCompleted, dec.Status)
}

func TestCriticalRiskEscalatesBeforePlanning(t *testing.T) {
	e := newEnv(t, civic.AgentFire)
	ctx := context.Background()

	req := &civic.Request{
		Type:     "fire_emergency",
		Location: "Industrial Zone",
		Fields:   map[string]any{"priority": "critical"},
	}
	out, err := e.pipe.Run(ctx, "job-2", req)
	require.NoError(t, err)

	assert.Equal(t, civic.DecisionEscalate, out.Decision)
	assert.True(t, out.RequiresHuman)
	assert.Equal(t, civic.RiskCritical, out.Risk)
	assert.Nil(t, out.Plan)
	assert.False(t, out.Feasible)

	// no tools ran and no coordination row was inserted
	rec, err := e.auditLog.ByJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Empty(t, rec.ToolResults)
	assert.Empty(t, rec.CoordinationID)

	active, err := e.decisions.Active(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestPersistentConflictExhaustsRetriesAndEscalates(t *testing.T) {
	e := newEnv(t, civic.AgentWater)
	ctx := context.Background()

	// engineering already holds Downtown for the whole conflict window
	require.NoError(t, e.decisions.Insert(ctx, &civic.CoordinationDecision{
		ID:          "eng-1",
		AgentType:   civic.AgentEngineering,
		Location:    "Downtown",
		Status:      civic.CoordinationActive,
		CreatedAt:   time.Now().UTC(),
		PlanSummary: "road resurfacing",
	}))

	out, err := e.pipe.Run(ctx, "job-3", shiftRequest("Downtown", 1))
	require.NoError(t, err)

	assert.Equal(t, civic.DecisionEscalate, out.Decision)
	assert.True(t, out.RequiresHuman)
	assert.Equal(t, config.Default().Pipeline.MaxRetries, out.Retries)
	assert.Contains(t, out.Rationale, "coordination conflicts persisted")

	// the checkpoint recommendations flowed into the replanned constraints
	require.NotNil(t, out.Plan)
	assert.Contains(t, out.Plan.Constraints, "stagger timing with engineering's active work at Downtown")

	// nothing was committed on behalf of the blocked agent
	active, err := e.decisions.Active(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, civic.AgentEngineering, active[0].AgentType)
}

func TestRepairableInfeasibilityReplansOnce(t *testing.T) {
	e := newEnv(t, civic.AgentWater)
	ctx := context.Background()

	// Industrial Zone: crews below baseline, but the night shift has capacity
	out, err := e.pipe.Run(ctx, "job-4", shiftRequest("Industrial Zone", 1))
	require.NoError(t, err)

	assert.Equal(t, 1, out.Retries)
	assert.True(t, out.Feasible)
	assert.Equal(t, civic.DecisionRecommend, out.Decision)
	require.NotNil(t, out.Plan)
	assert.Contains(t, out.Plan.Constraints, rules.ConstraintUseOpenShift)
	assert.InDelta(t, 0.90, out.Confidence, 0.001)
}

func TestDeterministicRunIsStable(t *testing.T) {
	ctx := context.Background()

	run := func() *Output {
		e := newEnv(t, civic.AgentWater)
		out, err := e.pipe.Run(ctx, "job-5", shiftRequest("Downtown", 2))
		require.NoError(t, err)
		return out
	}

	first, second := run(), run()
	assert.Equal(t, first.Decision, second.Decision)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Intent, second.Intent)
	assert.Equal(t, first.Goal, second.Goal)
	require.Equal(t, len(first.Plan.Steps), len(second.Plan.Steps))
	for i := range first.Plan.Steps {
		assert.Equal(t, first.Plan.Steps[i].Tool, second.Plan.Steps[i].Tool)
	}
}

func TestNilCoordinatorProceedsDegraded(t *testing.T) {
	cfg := config.Default()
	store := contextstore.Seeded()
	auditLog := audit.NewMemoryStore()
	dept := agents.NewDepartment(civic.AgentWater, store)
	pipe := New(dept, nil, store, nil, auditLog, nil, nil, cfg.Pipeline)

	ctx := context.Background()
	out, err := pipe.Run(ctx, "job-6", shiftRequest("Downtown", 2))
	require.NoError(t, err)

	assert.Equal(t, civic.DecisionRecommend, out.Decision)
	assert.True(t, out.Degraded)
	assert.InDelta(t, 0.90, out.Confidence, 0.001)
	assert.Contains(t, out.Rationale, "degraded inputs")

	rec, err := auditLog.ByJob(ctx, "job-6")
	require.NoError(t, err)
	assert.True(t, rec.CoordinationDegraded)
	assert.False(t, rec.ContextDegraded)
}

func TestPolicyViolationEscalates(t *testing.T) {
	e := newEnv(t, civic.AgentWater)
	ctx := context.Background()

	// five-day shift delay exceeds the water department's three-day limit
	out, err := e.pipe.Run(ctx, "job-7", shiftRequest("Downtown", 5))
	require.NoError(t, err)

	assert.Equal(t, civic.DecisionEscalate, out.Decision)
	assert.True(t, out.RequiresHuman)
	assert.False(t, out.PolicyOK)
	require.NotEmpty(t, out.PolicyViolations)
	assert.Contains(t, out.PolicyViolations[0], "exceeds department limit")
}

// oldQuarterEnv builds a pipeline over a location whose water main is in
// critical condition, so maintenance feasibility fails irreparably.
func oldQuarterEnv(t *testing.T) *env {
	t.Helper()
	cfg := config.Default()
	store := contextstore.NewMemoryStore()
	store.Put("Old Quarter", &contextstore.Snapshot{
		Crews:           contextstore.Crews{Available: 9, Baseline: 6},
		Shifts:          []contextstore.Shift{{Name: "morning", CrewsAssigned: 2, CrewsRequired: 4}},
		Assets:          []contextstore.Asset{{Name: "OQ-P7", Kind: "pipeline", Condition: "critical"}},
		BudgetRemaining: civic.Crore(1),
	})

	e := &env{
		auditLog:  audit.NewMemoryStore(),
		decisions: coordinator.NewMemoryDecisionStore(),
	}
	coord := coordinator.New(e.decisions, nil, cfg.Coordination)
	dept := agents.NewDepartment(civic.AgentWater, store)
	e.pipe = New(dept, nil, store, coord, e.auditLog, nil, nil, cfg.Pipeline)
	return e
}

func TestIrreparableInfeasibilityEscalates(t *testing.T) {
	e := oldQuarterEnv(t)

	req := &civic.Request{
		Type:     "maintenance_request",
		Location: "Old Quarter",
		Fields:   map[string]any{"notice_days": 3},
	}
	out, err := e.pipe.Run(context.Background(), "job-8", req)
	require.NoError(t, err)

	// policy is clean, so an infeasible plan goes to a human, not the bin
	assert.Equal(t, civic.DecisionEscalate, out.Decision)
	assert.True(t, out.RequiresHuman)
	assert.False(t, out.Feasible)
	assert.True(t, out.PolicyOK)
	assert.Contains(t, out.Rationale, "infeasible")
	assert.Contains(t, out.FeasibilityReason, "critical")
	assert.Zero(t, out.Retries)
}

func TestInfeasibleWithPolicyViolationsRejects(t *testing.T) {
	e := oldQuarterEnv(t)

	// zero notice also breaks the two-day maintenance notice policy
	req := &civic.Request{
		Type:     "maintenance_request",
		Location: "Old Quarter",
		Fields:   map[string]any{"notice_days": 0},
	}
	out, err := e.pipe.Run(context.Background(), "job-12", req)
	require.NoError(t, err)

	assert.Equal(t, civic.DecisionReject, out.Decision)
	assert.False(t, out.Feasible)
	assert.False(t, out.PolicyOK)
	require.NotEmpty(t, out.PolicyViolations)
	assert.Contains(t, out.Rationale, "infeasible and non-compliant")
}

func TestHighRiskEscalatesDespiteCleanRun(t *testing.T) {
	e := newEnv(t, civic.AgentFire)
	ctx := context.Background()

	req := &civic.Request{
		Type:     "fire_emergency",
		Location: "Downtown",
		Fields:   map[string]any{"priority": "high"},
	}
	out, err := e.pipe.Run(ctx, "job-13", req)
	require.NoError(t, err)

	// feasible and compliant, yet high risk caps the pipeline at escalation
	assert.Equal(t, civic.DecisionEscalate, out.Decision)
	assert.True(t, out.RequiresHuman)
	assert.Equal(t, civic.RiskHigh, out.Risk)
	assert.True(t, out.Feasible)
	assert.True(t, out.PolicyOK)
	assert.Contains(t, out.Rationale, "risk graded high")
	assert.InDelta(t, 0.70, out.Confidence, 0.001)

	// unlike critical risk, the run still planned and executed tools
	rec, err := e.auditLog.ByJob(ctx, "job-13")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ToolResults)
	assert.NotEmpty(t, rec.CoordinationID)
}

// rejectingIntervention answers every escalation with a rejection.
type rejectingIntervention struct{}

func (rejectingIntervention) Decide(context.Context, civic.AgentType, *civic.Request, []civic.Conflict) (*civic.HumanDecision, error) {
	return &civic.HumanDecision{
		Choice:    "reject",
		Approver:  "ops-desk",
		Timestamp: time.Now().UTC(),
	}, nil
}

func TestHumanRejectionTerminatesReject(t *testing.T) {
	cfg := config.Default()
	store := contextstore.Seeded()
	auditLog := audit.NewMemoryStore()
	decisions := coordinator.NewMemoryDecisionStore()
	coord := coordinator.New(decisions, rejectingIntervention{}, cfg.Coordination)
	dept := agents.NewDepartment(civic.AgentWater, store)
	pipe := New(dept, nil, store, coord, auditLog, nil, nil, cfg.Pipeline)

	ctx := context.Background()
	require.NoError(t, decisions.Insert(ctx, &civic.CoordinationDecision{
		ID:          "eng-2",
		AgentType:   civic.AgentEngineering,
		Location:    "Downtown",
		Status:      civic.CoordinationActive,
		CreatedAt:   time.Now().UTC(),
		PlanSummary: "bridge deck survey",
	}))

	// conflicted and over the cost escalation limit, so the checkpoint asks
	// the intervention channel, which rejects
	req := shiftRequest("Downtown", 1)
	req.EstimatedCost = civic.Lakh(60)
	out, err := pipe.Run(ctx, "job-14", req)
	require.NoError(t, err)

	assert.Equal(t, civic.DecisionReject, out.Decision)
	assert.False(t, out.RequiresHuman)
	assert.Contains(t, out.Rationale, "rejected by ops-desk")

	// the rejection is part of the audit trail
	rec, err := auditLog.ByJob(ctx, "job-14")
	require.NoError(t, err)
	require.NotNil(t, rec.HumanDecision)
	assert.Equal(t, "reject", rec.HumanDecision.Choice)
	assert.Equal(t, "ops-desk", rec.HumanDecision.Approver)

	// nothing was committed for the rejected plan
	active, err := decisions.Active(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, civic.AgentEngineering, active[0].AgentType)
}

// failingAuditStore refuses every append.
type failingAuditStore struct{}

func (failingAuditStore) Append(context.Context, *audit.Record) error { return errors.New("disk full") }
func (failingAuditStore) Get(context.Context, string) (*audit.Record, error) {
	return nil, audit.ErrNotFound
}
func (failingAuditStore) ByJob(context.Context, string) (*audit.Record, error) {
	return nil, audit.ErrNotFound
}
func (failingAuditStore) Recent(context.Context, int) ([]*audit.Record, error) { return nil, nil }

func TestUnwritableAuditLogDegradesRecommend(t *testing.T) {
	cfg := config.Default()
	store := contextstore.Seeded()
	decisions := coordinator.NewMemoryDecisionStore()
	coord := coordinator.New(decisions, nil, cfg.Coordination)
	dept := agents.NewDepartment(civic.AgentWater, store)
	pipe := New(dept, nil, store, coord, failingAuditStore{}, nil, nil, cfg.Pipeline)

	out, err := pipe.Run(context.Background(), "job-9", shiftRequest("Downtown", 2))
	require.NoError(t, err)

	assert.Equal(t, civic.DecisionEscalate, out.Decision)
	assert.True(t, out.RequiresHuman)
	assert.Contains(t, out.Rationale, "audit log unavailable")
}

func TestInvalidRequestFailsSynchronously(t *testing.T) {
	e := newEnv(t, civic.AgentWater)

	_, err := e.pipe.Run(context.Background(), "job-10", &civic.Request{Type: "schedule_shift_request"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "location")
}

func TestUnknownLocationRunsDegraded(t *testing.T) {
	e := newEnv(t, civic.AgentWater)

	out, err := e.pipe.Run(context.Background(), "job-11", shiftRequest("Nowhere", 1))
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	// empty context means no data-completeness bonus; the run still decides
	assert.NotEmpty(t, out.Decision)
}
