// Package pipeline runs the per-request reasoning loop of one department
// agent. The pipeline never aborts once a request is accepted: every failure
// mode degrades into a worse decision (escalate or reject) instead of an
// error, and every completed run leaves exactly one audit record.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/civicmind/civicmind/pkg/agents"
	"github.com/civicmind/civicmind/pkg/audit"
	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/config"
	"github.com/civicmind/civicmind/pkg/contextstore"
	"github.com/civicmind/civicmind/pkg/llm"
	"github.com/civicmind/civicmind/pkg/observability"
	"github.com/civicmind/civicmind/pkg/rules"
	"github.com/civicmind/civicmind/pkg/tools"
)

// Coordinator is the cross-agent checkpoint consulted between planning and
// execution.
type Coordinator interface {
	// CheckPlanConflicts returns the verdict for a plan. An error means the
	// coordinator was unreachable; the caller proceeds degraded.
	CheckPlanConflicts(ctx context.Context, agent civic.AgentType, req *civic.Request, plan *civic.Plan) (*civic.Verdict, error)

	// RecordOutcome completes the coordination decision once the pipeline
	// reaches a terminal decision. Idempotent.
	RecordOutcome(ctx context.Context, decisionID, auditID string, decision civic.Decision) error
}

// Pipeline is one department's runner. It is stateless across runs and safe
// for concurrent use; the config may be swapped live between runs.
type Pipeline struct {
	dept         *agents.Department
	oracle       *llm.Adapter
	store        contextstore.Store
	coord        Coordinator
	auditLog     audit.Store
	transparency *audit.Transparency
	metrics      *observability.Metrics
	cfg          atomic.Pointer[config.PipelineConfig]
	log          *slog.Logger
}

// New assembles a pipeline. coord and transparency may be nil; metrics may be
// the zero recorder.
func New(
	dept *agents.Department,
	oracle *llm.Adapter,
	store contextstore.Store,
	coord Coordinator,
	auditLog audit.Store,
	transparency *audit.Transparency,
	metrics *observability.Metrics,
	cfg config.PipelineConfig,
) *Pipeline {
	if oracle == nil {
		oracle = llm.Disabled()
	}
	p := &Pipeline{
		dept:         dept,
		oracle:       oracle,
		store:        store,
		coord:        coord,
		auditLog:     auditLog,
		transparency: transparency,
		metrics:      metrics,
		log:          slog.With("agent", dept.Type),
	}
	p.cfg.Store(&cfg)
	return p
}

// UpdateConfig swaps the pipeline settings for subsequent phase reads.
func (p *Pipeline) UpdateConfig(cfg config.PipelineConfig) {
	p.cfg.Store(&cfg)
}

func (p *Pipeline) config() config.PipelineConfig {
	return *p.cfg.Load()
}

// Run executes the full pipeline for one request. The returned error is
// non-nil only for invalid requests and cancelled contexts; every other
// failure becomes a degraded decision in the output.
func (p *Pipeline) Run(ctx context.Context, jobID string, req *civic.Request) (out *Output, err error) {
	s := &State{
		JobID:     jobID,
		Request:   req,
		StartedAt: time.Now().UTC(),
		PolicyOK:  true,
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pipeline panic", "job_id", jobID, "panic", r)
			s.Decision = civic.DecisionEscalate
			s.RequiresHuman = true
			s.Rationale = "internal error during evaluation; escalated for human review"
			out, err = p.finalize(ctx, s), nil
		}
	}()

	// Phase 1: validate. The server validates at submission too; this guards
	// direct callers.
	if err := agents.ValidateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	// Phase 2: context load. A failed bulk read degrades to an empty
	// snapshot rather than failing the job.
	snap, err := p.store.Snapshot(ctx, req.Location)
	if err != nil {
		p.log.Warn("context load failed", "job_id", jobID, "location", req.Location, "error", err)
		snap = &contextstore.Snapshot{Location: req.Location, Degraded: true, RetrievedAt: time.Now()}
	}
	s.Snapshot = snap

	// Phase 3: intent and risk.
	p.intentPhase(ctx, s)

	// Critical risk short-circuits to escalation: no plan, no tools, no
	// coordination. Humans decide; the pipeline only records.
	if s.Risk == civic.RiskCritical {
		s.Goal = fmt.Sprintf("Escalate %s at %s for immediate human direction.", req.Type, req.Location)
		s.Decision = civic.DecisionEscalate
		s.RequiresHuman = true
		s.Feasible = false
		s.FeasibilityReason = "not evaluated: critical risk escalates before planning"
		s.Confidence = rules.Confidence(rules.ConfidenceInput{
			Feasible: false, PolicyOK: true, Risk: s.Risk,
			DataCompleteness: snap.Completeness(),
		})
		s.Rationale = fmt.Sprintf("Risk graded critical for %s at %s; escalated without autonomous action.", req.Type, req.Location)
		return p.finalize(ctx, s), nil
	}

	// Phase 4: goal.
	p.goalPhase(ctx, s)

	// Phases 5-9 loop: plan, checkpoint, execute, observe, judge. The
	// checkpoint-retry and repairable-infeasibility paths share one retry
	// budget.
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Phase 5: plan.
		p.planPhase(ctx, s)

		// Phase 6: coordination checkpoint.
		stop := p.checkpointPhase(ctx, s)
		if stop {
			return p.finalize(ctx, s), nil
		}
		if s.Verdict.Kind == civic.VerdictRetry {
			if s.Retries >= p.config().MaxRetries {
				s.Decision = civic.DecisionEscalate
				s.RequiresHuman = true
				s.Rationale = fmt.Sprintf("coordination conflicts persisted after %d replans: %s",
					s.Retries, describeConflicts(s.Verdict.Conflicts))
				s.Confidence = p.confidenceFor(ctx, s)
				return p.finalize(ctx, s), nil
			}
			s.Retries++
			s.Constraints = mergeConstraints(s.Constraints, s.Verdict.Recommendations...)
			continue
		}

		// Phase 7: tool execution.
		p.toolsPhase(ctx, s)

		// Phase 8: observe.
		p.observePhase(ctx, s)

		// Phase 9: feasibility.
		verdict := p.dept.Rules.Feasibility(s.Intent, s.Observations, req, s.Plan)
		s.Feasible = verdict.OK
		s.FeasibilityReason = verdict.Reason
		if !verdict.OK && verdict.Repairable && s.Retries < p.config().MaxRetries {
			s.Retries++
			s.Constraints = mergeConstraints(s.Constraints, verdict.RepairHint)
			p.log.Info("replanning on repairable infeasibility",
				"job_id", jobID, "reason", verdict.Reason, "retry", s.Retries)
			continue
		}
		break
	}

	// Phase 10: policy.
	policy := p.policyPhase(ctx, s)
	s.PolicyOK = policy.OK
	s.PolicyViolations = policy.Violations
	s.PolicyNotes = policy.Notes

	// Phase 12: confidence. (Phase 11, the audit write, happens in finalize
	// so the record carries the decision.)
	s.Confidence = p.confidenceFor(ctx, s)

	// Phase 13: decide.
	p.decidePhase(s)

	return p.finalize(ctx, s), nil
}

// intentAnswer is the oracle's classification payload.
type intentAnswer struct {
	Intent    string `json:"intent"`
	Risk      string `json:"risk"`
	Reasoning string `json:"reasoning,omitempty"`
}

func (p *Pipeline) intentPhase(ctx context.Context, s *State) {
	s.Intent = agents.IntentFor(s.Request.Type)
	s.Risk = agents.RiskFor(s.Request)

	var ans intentAnswer
	if p.ask(ctx, llm.PhaseIntent, p.dept.IntentPrompt(s.Request), &ans) {
		// The oracle may refine the intent and raise (never lower) the risk.
		if ans.Intent != "" {
			s.Intent = civic.Intent(ans.Intent)
		}
		if r := civic.RiskLevel(ans.Risk); r.Rank() > s.Risk.Rank() {
			switch r {
			case civic.RiskMedium, civic.RiskHigh, civic.RiskCritical:
				s.Risk = r
			}
		}
	}
}

// goalAnswer is the oracle's goal payload.
type goalAnswer struct {
	Goal            string   `json:"goal"`
	SuccessCriteria []string `json:"success_criteria,omitempty"`
}

func (p *Pipeline) goalPhase(ctx context.Context, s *State) {
	s.Goal, s.SuccessCriteria = agents.FallbackGoal(s.Intent, s.Request)

	var ans goalAnswer
	if p.ask(ctx, llm.PhaseGoal, p.dept.GoalPrompt(s.Request, s.Intent, s.Risk), &ans) && ans.Goal != "" {
		s.Goal = ans.Goal
		if len(ans.SuccessCriteria) > 0 {
			s.SuccessCriteria = ans.SuccessCriteria
		}
	}
}

func (p *Pipeline) planPhase(ctx context.Context, s *State) {
	fallback := p.dept.FallbackPlan(s.Intent, s.Request, s.Constraints)
	s.Plan = fallback

	var ans civic.Plan
	prompt := p.dept.PlannerPrompt(s.Request, s.Intent, s.Goal, s.Snapshot, s.Constraints)
	if p.ask(ctx, llm.PhasePlanner, prompt, &ans) && p.validPlan(&ans, s.Request.Location) {
		ans.Constraints = mergeConstraints(ans.Constraints, s.Constraints...)
		if ans.EstimatedCost == 0 {
			ans.EstimatedCost = s.Request.EstimatedCost
		}
		s.Plan = &ans
	}
}

// validPlan rejects oracle plans that reference unregistered tools.
func (p *Pipeline) validPlan(plan *civic.Plan, location string) bool {
	if len(plan.Steps) == 0 {
		return false
	}
	for i := range plan.Steps {
		if _, ok := p.dept.Tools.Get(plan.Steps[i].Tool); !ok {
			return false
		}
		if plan.Steps[i].Args == nil {
			plan.Steps[i].Args = map[string]any{}
		}
		if _, ok := plan.Steps[i].Args["location"]; !ok {
			plan.Steps[i].Args["location"] = location
		}
	}
	return true
}

// checkpointPhase consults the coordinator. It returns true when the run
// must finalize immediately (escalation verdict).
func (p *Pipeline) checkpointPhase(ctx context.Context, s *State) (stop bool) {
	if p.coord == nil {
		s.Verdict = &civic.Verdict{Kind: civic.VerdictProceed, Degraded: true}
		return false
	}

	cctx, cancel := context.WithTimeout(ctx, p.config().CheckpointTimeout)
	defer cancel()

	verdict, err := p.coord.CheckPlanConflicts(cctx, p.dept.Type, s.Request, s.Plan)
	if err != nil {
		// Coordinator down is not a reason to stall municipal operations:
		// proceed degraded and let confidence reflect it.
		p.log.Warn("coordinator unreachable, proceeding degraded", "job_id", s.JobID, "error", err)
		s.Verdict = &civic.Verdict{Kind: civic.VerdictProceed, Degraded: true}
		p.metrics.RecordConflictCheck(ctx, civic.VerdictProceed)
		return false
	}
	s.Verdict = verdict
	s.CoordinationID = verdict.DecisionID
	if verdict.Human != nil {
		s.Human = verdict.Human
	}
	p.metrics.RecordConflictCheck(ctx, verdict.Kind)

	if verdict.Kind == civic.VerdictEscalate {
		if s.Human != nil && s.Human.Choice == "reject" {
			// Human rejection is terminal: the review already happened.
			s.Decision = civic.DecisionReject
			s.Rationale = fmt.Sprintf("plan rejected by %s: %s", s.Human.Approver, describeConflicts(verdict.Conflicts))
		} else {
			s.Decision = civic.DecisionEscalate
			s.RequiresHuman = true
			s.Rationale = fmt.Sprintf("coordinator escalated: %s", describeConflicts(verdict.Conflicts))
		}
		s.Confidence = p.confidenceFor(ctx, s)
		return true
	}
	return false
}

func (p *Pipeline) toolsPhase(ctx context.Context, s *State) {
	s.ToolResults = nil
	for _, step := range s.Plan.Steps {
		tool, ok := p.dept.Tools.Get(step.Tool)
		if !ok {
			s.ToolResults = append(s.ToolResults, civic.ToolResult{
				Tool: step.Tool, Args: step.Args, Error: "unknown tool",
			})
			continue
		}

		args := step.Args
		if args == nil {
			args = map[string]any{}
		}
		if _, ok := args["location"]; !ok {
			args["location"] = s.Request.Location
		}

		start := time.Now()
		out, err := tools.WithTimeout(tool, p.config().ToolTimeout).Execute(ctx, args)
		result := civic.ToolResult{
			Tool: step.Tool, Args: args, Output: out, Duration: time.Since(start),
		}
		if err != nil {
			result.Error = err.Error()
		}
		p.metrics.RecordTool(ctx, step.Tool, result.Duration, err)
		s.ToolResults = append(s.ToolResults, result)
	}
}

func (p *Pipeline) observePhase(ctx context.Context, s *State) {
	obs := deriveObservations(s.Snapshot, s.ToolResults)

	var ans civic.Observations
	if p.ask(ctx, llm.PhaseObserver, p.dept.ObserverPrompt(s.Request, s.ToolResults), &ans) {
		// Oracle may fill gaps the deterministic derivation left nil, never
		// overwrite observed values.
		if obs.ManpowerSufficient == nil {
			obs.ManpowerSufficient = ans.ManpowerSufficient
		}
		if obs.EquipmentAvailable == nil {
			obs.EquipmentAvailable = ans.EquipmentAvailable
		}
		if obs.AlternateShiftOpen == nil {
			obs.AlternateShiftOpen = ans.AlternateShiftOpen
		}
		if obs.InfraCondition == "" {
			obs.InfraCondition = ans.InfraCondition
		}
	}

	cost := s.Plan.EstimatedCost
	if cost == 0 {
		cost = s.Request.EstimatedCost
	}
	budgetAgainstCost(obs, cost)
	s.Observations = obs
}

// policyAnswer is the oracle's policy payload. It may only add violations.
type policyAnswer struct {
	AdditionalViolations []string `json:"additional_violations,omitempty"`
	Notes                []string `json:"notes,omitempty"`
}

func (p *Pipeline) policyPhase(ctx context.Context, s *State) rules.PolicyVerdict {
	verdict := p.dept.Rules.Policy(s.Intent, s.Observations, s.Request, s.Plan)

	var ans policyAnswer
	if p.ask(ctx, llm.PhasePolicy, p.dept.PolicyPrompt(s.Request, s.Plan, verdict.Violations), &ans) {
		verdict.Violations = append(verdict.Violations, ans.AdditionalViolations...)
		verdict.Notes = append(verdict.Notes, ans.Notes...)
		verdict.OK = len(verdict.Violations) == 0
	}
	return verdict
}

// confidenceAnswer is the oracle's confidence payload.
type confidenceAnswer struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning,omitempty"`
}

func (p *Pipeline) confidenceFor(ctx context.Context, s *State) float64 {
	score := rules.Confidence(rules.ConfidenceInput{
		Feasible:         s.Feasible,
		PolicyOK:         s.PolicyOK,
		Risk:             s.Risk,
		DataCompleteness: s.Snapshot.Completeness(),
		Retries:          s.Retries,
		Violations:       len(s.PolicyViolations),
	})

	var ans confidenceAnswer
	if p.ask(ctx, llm.PhaseConfidence,
		p.dept.ConfidencePrompt(s.Request, s.Observations, s.Feasible, s.PolicyOK, s.Risk), &ans) {
		score = rules.Blend(score, ans.Score)
	}

	if s.Degraded() {
		score = rules.Clamp(score - 0.1)
	}
	return score
}

func (p *Pipeline) decidePhase(s *State) {
	switch {
	case !s.Feasible && !s.PolicyOK:
		// Reject only when both gates fail; either alone still goes to a human.
		s.Decision = civic.DecisionReject
		s.Rationale = fmt.Sprintf("infeasible and non-compliant: %s; %s",
			s.FeasibilityReason, strings.Join(s.PolicyViolations, "; "))
	case !s.Feasible:
		s.Decision = civic.DecisionEscalate
		s.RequiresHuman = true
		s.Rationale = fmt.Sprintf("infeasible: %s", s.FeasibilityReason)
	case !s.PolicyOK:
		s.Decision = civic.DecisionEscalate
		s.RequiresHuman = true
		s.Rationale = fmt.Sprintf("policy violations require review: %s", strings.Join(s.PolicyViolations, "; "))
	case s.Risk.Rank() >= civic.RiskHigh.Rank():
		s.Decision = civic.DecisionEscalate
		s.RequiresHuman = true
		s.Rationale = fmt.Sprintf("risk graded %s; autonomous recommendation is limited to low and medium risk", s.Risk)
	case s.Confidence >= p.config().ConfidenceThreshold:
		s.Decision = civic.DecisionRecommend
		s.Rationale = fmt.Sprintf("feasible and compliant (confidence %.2f): %s", s.Confidence, s.Goal)
	default:
		s.Decision = civic.DecisionEscalate
		s.RequiresHuman = true
		s.Rationale = fmt.Sprintf("confidence %.2f below threshold %.2f", s.Confidence, p.config().ConfidenceThreshold)
	}

	if s.Degraded() {
		s.Rationale += " (evaluated on degraded inputs)"
	}
}

// finalize writes the audit record (Phase 11), settles the coordination
// decision, records metrics, and shapes the output.
func (p *Pipeline) finalize(ctx context.Context, s *State) *Output {
	rec := p.buildRecord(s)
	if err := p.auditLog.Append(ctx, rec); err != nil {
		// An unwritable audit log must not lose the decision, but it does
		// taint it: degrade a recommend to escalate.
		p.log.Error("audit append failed", "job_id", s.JobID, "error", err)
		if s.Decision == civic.DecisionRecommend {
			s.Decision = civic.DecisionEscalate
			s.RequiresHuman = true
			s.Rationale += "; audit log unavailable, human confirmation required"
		}
		rec.Decision = s.Decision
	}
	if err := p.transparency.Write(ctx, rec); err != nil {
		p.log.Warn("transparency write failed", "job_id", s.JobID, "error", err)
	}

	if p.coord != nil && s.CoordinationID != "" {
		if err := p.coord.RecordOutcome(ctx, s.CoordinationID, rec.ID, s.Decision); err != nil {
			p.log.Warn("coordination outcome not recorded", "job_id", s.JobID, "error", err)
		}
	}

	p.metrics.RecordDecision(ctx, p.dept.Type, s.Decision)
	p.log.Info("decision",
		"job_id", s.JobID, "type", s.Request.Type, "location", s.Request.Location,
		"decision", s.Decision, "confidence", fmt.Sprintf("%.2f", s.Confidence),
		"retries", s.Retries, "degraded", s.Degraded())

	return &Output{
		JobID:             s.JobID,
		AgentType:         p.dept.Type,
		Decision:          s.Decision,
		Confidence:        s.Confidence,
		Rationale:         s.Rationale,
		Intent:            s.Intent,
		Risk:              s.Risk,
		Goal:              s.Goal,
		Plan:              s.Plan,
		Observations:      s.Observations,
		Feasible:          s.Feasible,
		FeasibilityReason: s.FeasibilityReason,
		PolicyOK:          s.PolicyOK,
		PolicyViolations:  s.PolicyViolations,
		Retries:           s.Retries,
		Degraded:          s.Degraded(),
		RequiresHuman:     s.RequiresHuman,
		AuditID:           rec.ID,
		CompletedAt:       time.Now().UTC(),
	}
}

func (p *Pipeline) buildRecord(s *State) *audit.Record {
	rec := audit.NewRecord(s.JobID, p.dept.Type)
	rec.Request = s.Request
	rec.Intent = s.Intent
	rec.Risk = s.Risk
	rec.Goal = s.Goal
	rec.Plan = s.Plan
	rec.ToolResults = s.ToolResults
	rec.Observations = s.Observations
	rec.Feasible = s.Feasible
	rec.FeasibilityReason = s.FeasibilityReason
	rec.PolicyOK = s.PolicyOK
	rec.PolicyViolations = s.PolicyViolations
	rec.PoliciesReferenced = p.policiesReferenced()
	rec.Confidence = s.Confidence
	rec.Decision = s.Decision
	rec.Rationale = s.Rationale
	rec.AffectedCitizens = s.Request.Location
	rec.CostImpact = planCost(s)
	rec.Retries = s.Retries
	rec.ContextDegraded = s.Snapshot != nil && s.Snapshot.Degraded
	rec.CoordinationDegraded = s.Verdict != nil && s.Verdict.Degraded
	rec.CoordinationID = s.CoordinationID
	rec.HumanDecision = s.Human
	return rec
}

// policiesReferenced names the department constants the policy phase reads,
// with their values at decision time.
func (p *Pipeline) policiesReferenced() []string {
	pol := p.dept.Rules.Policies()
	var out []string
	if pol.MaxShiftDelayDays > 0 {
		out = append(out, fmt.Sprintf("max_shift_delay_days=%d", pol.MaxShiftDelayDays))
	}
	if pol.MinMaintenanceNoticeDays > 0 {
		out = append(out, fmt.Sprintf("min_maintenance_notice_days=%d", pol.MinMaintenanceNoticeDays))
	}
	if pol.MaxConcurrentProjects > 0 {
		out = append(out, fmt.Sprintf("max_concurrent_projects=%d", pol.MaxConcurrentProjects))
	}
	if pol.MaxBudgetUtilization > 0 {
		out = append(out, fmt.Sprintf("max_budget_utilization=%.2f", pol.MaxBudgetUtilization))
	}
	return out
}

func planCost(s *State) civic.Money {
	if s.Plan != nil && s.Plan.EstimatedCost > 0 {
		return s.Plan.EstimatedCost
	}
	return s.Request.EstimatedCost
}

// ask consults the oracle for one phase, recording the fallback metric when
// the deterministic path wins.
func (p *Pipeline) ask(ctx context.Context, phase llm.Phase, prompt string, out any) bool {
	if !p.oracle.Enabled(phase) {
		return false
	}
	err := p.oracle.GenerateJSON(ctx, phase, prompt, out)
	p.metrics.RecordLLM(ctx, string(phase), err != nil)
	if err != nil {
		p.log.Debug("llm fallback", "phase", phase, "error", err)
		return false
	}
	return true
}

func mergeConstraints(existing []string, add ...string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(add))
	for _, c := range existing {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range add {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func describeConflicts(conflicts []civic.Conflict) string {
	if len(conflicts) == 0 {
		return "no conflict detail"
	}
	parts := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		parts = append(parts, fmt.Sprintf("%s: %s", c.Kind, c.Description))
	}
	return strings.Join(parts, "; ")
}
