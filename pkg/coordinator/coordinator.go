// Package coordinator implements the cross-agent conflict-check protocol.
// Agents rendezvous here between planning and execution; the coordinator
// compares the incoming plan against every active coordination decision and
// answers proceed, retry, or escalate. Checks for the same location are
// serialized so two agents cannot both pass an identical check.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/config"
)

// Coordinator is the shared checkpoint. Safe for concurrent use.
type Coordinator struct {
	store        DecisionStore
	intervention Intervention
	cfg          config.CoordinationConfig
	log          *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds a coordinator. intervention may be nil, in which case
// escalations go to the caller unanswered.
func New(store DecisionStore, intervention Intervention, cfg config.CoordinationConfig) *Coordinator {
	if cfg.AutoApprove && intervention == nil {
		intervention = AutoApprove{}
	}
	return &Coordinator{
		store:        store,
		intervention: intervention,
		cfg:          cfg,
		log:          slog.With("component", "coordinator"),
		locks:        make(map[string]*sync.Mutex),
	}
}

// locationLock returns the mutex serializing checks for one location.
func (c *Coordinator) locationLock(location string) *sync.Mutex {
	key := strings.ToLower(strings.TrimSpace(location))
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	c.locks[key] = l
	return l
}

// CheckPlanConflicts runs the conflict-check protocol for one plan.
func (c *Coordinator) CheckPlanConflicts(ctx context.Context, agent civic.AgentType, req *civic.Request, plan *civic.Plan) (*civic.Verdict, error) {
	lock := c.locationLock(req.Location)
	lock.Lock()
	defer lock.Unlock()

	active, err := c.activeWindow(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active decisions: %w", err)
	}

	cost := plan.EstimatedCost
	if cost == 0 {
		cost = req.EstimatedCost
	}

	conflicts := c.detect(agent, req, plan, cost, active)
	if len(conflicts) == 0 {
		id, err := c.commit(ctx, agent, req, plan, cost)
		if err != nil {
			return nil, err
		}
		return &civic.Verdict{Kind: civic.VerdictProceed, DecisionID: id}, nil
	}

	if hasKind(conflicts, civic.ConflictCircular) || cost > c.cfg.CostEscalationLimit() {
		return c.escalate(ctx, agent, req, plan, cost, conflicts)
	}

	return &civic.Verdict{
		Kind:            civic.VerdictRetry,
		Conflicts:       conflicts,
		Recommendations: recommendationsFor(conflicts),
	}, nil
}

// RecordOutcome completes the coordination decision for a finished pipeline
// run. Calling it twice, or for an already superseded decision, is a no-op.
func (c *Coordinator) RecordOutcome(ctx context.Context, decisionID, auditID string, decision civic.Decision) error {
	if err := c.store.SetStatus(ctx, decisionID, civic.CoordinationCompleted); err != nil {
		return err
	}
	c.log.Info("coordination outcome recorded",
		"decision_id", decisionID, "audit_id", auditID, "decision", decision)
	return nil
}

// activeWindow loads active decisions inside the conflict window and lazily
// supersedes the ones that aged out of it.
func (c *Coordinator) activeWindow(ctx context.Context) ([]*civic.CoordinationDecision, error) {
	all, err := c.store.Active(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-c.cfg.ConflictWindow)
	fresh := all[:0]
	for _, dec := range all {
		if dec.CreatedAt.Before(cutoff) {
			if err := c.store.SetStatus(ctx, dec.ID, civic.CoordinationSuperseded); err != nil {
				c.log.Warn("supersede failed", "decision_id", dec.ID, "error", err)
			}
			continue
		}
		fresh = append(fresh, dec)
	}
	return fresh, nil
}

func (c *Coordinator) detect(agent civic.AgentType, req *civic.Request, plan *civic.Plan, cost civic.Money, active []*civic.CoordinationDecision) []civic.Conflict {
	var conflicts []civic.Conflict
	var committed civic.Money

	for _, dec := range active {
		committed += dec.EstimatedCost

		if dec.AgentType != agent && sameLocation(dec.Location, req.Location) {
			conflicts = append(conflicts, civic.Conflict{
				Kind:        civic.ConflictLocation,
				Description: fmt.Sprintf("%s has active work at %s: %s", dec.AgentType, dec.Location, dec.PlanSummary),
				AgentType:   dec.AgentType,
				Location:    dec.Location,
			})
		}
		if dec.AgentType != agent && civic.Intersects(req.ResourcesNeeded, dec.ResourcesNeeded) {
			conflicts = append(conflicts, civic.Conflict{
				Kind:        civic.ConflictResource,
				Description: fmt.Sprintf("shared resources already claimed by %s", dec.AgentType),
				AgentType:   dec.AgentType,
			})
		}
		if waitsOn(plan.WaitsFor, dec.AgentType) && waitsOn(dec.WaitsFor, agent) {
			conflicts = append(conflicts, civic.Conflict{
				Kind:        civic.ConflictCircular,
				Description: fmt.Sprintf("circular dependency: %s waits for %s and vice versa", agent, dec.AgentType),
				AgentType:   dec.AgentType,
			})
		}
	}

	if cost > 0 && committed+cost > c.cfg.BudgetCeiling() {
		conflicts = append(conflicts, civic.Conflict{
			Kind: civic.ConflictBudget,
			Description: fmt.Sprintf("committed spend %s plus plan cost %s exceeds the %s ceiling",
				committed, cost, c.cfg.BudgetCeiling()),
		})
	}
	return conflicts
}

// escalate consults the intervention channel; an approval converts the
// verdict to proceed with the human decision attached.
func (c *Coordinator) escalate(ctx context.Context, agent civic.AgentType, req *civic.Request, plan *civic.Plan, cost civic.Money, conflicts []civic.Conflict) (*civic.Verdict, error) {
	verdict := &civic.Verdict{
		Kind:          civic.VerdictEscalate,
		Conflicts:     conflicts,
		RequiresHuman: true,
	}
	if c.intervention == nil {
		return verdict, nil
	}

	human, err := c.intervention.Decide(ctx, agent, req, conflicts)
	if err != nil {
		c.log.Warn("intervention failed", "agent", agent, "error", err)
		return verdict, nil
	}
	verdict.Human = human

	if human.Choice == "approve" {
		id, err := c.commit(ctx, agent, req, plan, cost)
		if err != nil {
			return nil, err
		}
		verdict.Kind = civic.VerdictProceed
		verdict.RequiresHuman = false
		verdict.DecisionID = id
	}
	return verdict, nil
}

// commit inserts the active coordination decision and returns its ID.
func (c *Coordinator) commit(ctx context.Context, agent civic.AgentType, req *civic.Request, plan *civic.Plan, cost civic.Money) (string, error) {
	dec := &civic.CoordinationDecision{
		ID:              uuid.NewString(),
		AgentType:       agent,
		Location:        req.Location,
		ResourcesNeeded: req.ResourcesNeeded,
		EstimatedCost:   cost,
		Status:          civic.CoordinationActive,
		CreatedAt:       time.Now().UTC(),
		PlanSummary:     plan.Summary,
		WaitsFor:        plan.WaitsFor,
	}
	if err := c.store.Insert(ctx, dec); err != nil {
		return "", fmt.Errorf("insert coordination decision: %w", err)
	}
	return dec.ID, nil
}

func recommendationsFor(conflicts []civic.Conflict) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(r string) {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for _, c := range conflicts {
		switch c.Kind {
		case civic.ConflictLocation:
			add(fmt.Sprintf("stagger timing with %s's active work at %s", c.AgentType, c.Location))
		case civic.ConflictResource:
			add(fmt.Sprintf("avoid resources currently claimed by %s", c.AgentType))
		case civic.ConflictBudget:
			add("reduce plan cost below the remaining fiscal headroom")
		}
	}
	return out
}

func hasKind(conflicts []civic.Conflict, kind civic.ConflictKind) bool {
	for _, c := range conflicts {
		if c.Kind == kind {
			return true
		}
	}
	return false
}

func sameLocation(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func waitsOn(waits []civic.AgentType, agent civic.AgentType) bool {
	for _, w := range waits {
		if w == agent {
			return true
		}
	}
	return false
}
