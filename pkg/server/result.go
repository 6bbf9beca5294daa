package server

import (
	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/pipeline"
)

// resultView is the external result payload. The wire shape is part of the
// API contract and stays stable independently of the pipeline's internal
// output type.
type resultView struct {
	Decision            civic.Decision  `json:"decision"`
	Reason              string          `json:"reason"`
	RequiresHumanReview bool            `json:"requires_human_review"`
	Recommendation      *recommendation `json:"recommendation,omitempty"`
	Details             resultDetails   `json:"details"`
}

// recommendation is attached only to recommend decisions.
type recommendation struct {
	Action     string      `json:"action"`
	Plan       *civic.Plan `json:"plan,omitempty"`
	Confidence float64     `json:"confidence"`
}

type resultDetails struct {
	Feasible          bool                `json:"feasible"`
	PolicyCompliant   bool                `json:"policy_compliant"`
	Confidence        float64             `json:"confidence"`
	RiskLevel         civic.RiskLevel     `json:"risk_level"`
	Plan              *civic.Plan         `json:"plan,omitempty"`
	PolicyViolations  []string            `json:"policy_violations,omitempty"`
	Observations      *civic.Observations `json:"observations,omitempty"`
	FeasibilityReason string              `json:"feasibility_reason,omitempty"`

	AgentType civic.AgentType `json:"agent_type,omitempty"`
	Retries   int             `json:"retries"`
	Degraded  bool            `json:"degraded,omitempty"`
	AuditID   string          `json:"audit_id,omitempty"`
}

// renderResult shapes a pipeline output for the wire.
func renderResult(out *pipeline.Output) *resultView {
	if out == nil {
		return nil
	}
	v := &resultView{
		Decision:            out.Decision,
		Reason:              out.Rationale,
		RequiresHumanReview: out.RequiresHuman,
		Details: resultDetails{
			Feasible:          out.Feasible,
			PolicyCompliant:   out.PolicyOK,
			Confidence:        out.Confidence,
			RiskLevel:         out.Risk,
			Plan:              out.Plan,
			PolicyViolations:  out.PolicyViolations,
			Observations:      out.Observations,
			FeasibilityReason: out.FeasibilityReason,
			AgentType:         out.AgentType,
			Retries:           out.Retries,
			Degraded:          out.Degraded,
			AuditID:           out.AuditID,
		},
	}
	if out.Decision == civic.DecisionRecommend {
		v.Recommendation = &recommendation{
			Action:     "proceed",
			Plan:       out.Plan,
			Confidence: out.Confidence,
		}
	}
	return v
}
