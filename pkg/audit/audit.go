// Package audit is the append-only log of agent decisions. Every completed
// pipeline run writes exactly one record here; nothing is ever updated or
// deleted. The optional transparency sink mirrors records into a vector
// store for semantic search by oversight tooling.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/civicmind/civicmind/pkg/civic"
)

// ErrNotFound means no record exists under the given ID.
var ErrNotFound = errors.New("audit: record not found")

// Record is the complete account of one pipeline run: everything a reviewer
// needs to reconstruct why the decision was made.
type Record struct {
	ID        string          `json:"id"`
	JobID     string          `json:"job_id"`
	AgentType civic.AgentType `json:"agent_type"`

	Request      *civic.Request      `json:"request"`
	Intent       civic.Intent        `json:"intent"`
	Risk         civic.RiskLevel     `json:"risk"`
	Goal         string              `json:"goal,omitempty"`
	Plan         *civic.Plan         `json:"plan,omitempty"`
	ToolResults  []civic.ToolResult  `json:"tool_results,omitempty"`
	Observations *civic.Observations `json:"observations,omitempty"`

	Feasible          bool     `json:"feasible"`
	FeasibilityReason string   `json:"feasibility_reason,omitempty"`
	PolicyOK          bool     `json:"policy_ok"`
	PolicyViolations  []string `json:"policy_violations,omitempty"`

	// PoliciesReferenced names the department constants consulted, so the
	// record stands alone when constants later change.
	PoliciesReferenced []string `json:"policies_referenced,omitempty"`

	Confidence float64        `json:"confidence"`
	Decision   civic.Decision `json:"decision"`
	Rationale  string         `json:"rationale"`

	AffectedCitizens string      `json:"affected_citizens,omitempty"`
	CostImpact       civic.Money `json:"cost_impact,omitempty"`

	Retries              int    `json:"retries"`
	ContextDegraded      bool   `json:"context_degraded,omitempty"`
	CoordinationDegraded bool   `json:"coordination_degraded,omitempty"`
	CoordinationID       string `json:"coordination_id,omitempty"`

	HumanDecision *civic.HumanDecision `json:"human_decision,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewRecord stamps identity and creation time.
func NewRecord(jobID string, agent civic.AgentType) *Record {
	return &Record{
		ID:        uuid.NewString(),
		JobID:     jobID,
		AgentType: agent,
		CreatedAt: time.Now().UTC(),
	}
}

// Store persists records. Append is the only write.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)

	// ByJob returns the record written for a job, or ErrNotFound.
	ByJob(ctx context.Context, jobID string) (*Record, error)

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]*Record, error)
}
