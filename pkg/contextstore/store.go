// Package contextstore provides read-only domain snapshots for a location.
// The per-department databases behind it are external; from the agents'
// perspective this package only reads. A failed read degrades the snapshot
// instead of failing the pipeline.
package contextstore

import (
	"context"
	"time"

	"github.com/civicmind/civicmind/pkg/civic"
)

// Project is an active works project at a location.
type Project struct {
	Name      string          `json:"name"`
	AgentType civic.AgentType `json:"agent_type"`
	Status    string          `json:"status"`
	Cost      civic.Money     `json:"cost,omitempty"`
}

// Shift is a scheduled crew slot.
type Shift struct {
	Name          string `json:"name"` // morning, evening, night
	CrewsAssigned int    `json:"crews_assigned"`
	CrewsRequired int    `json:"crews_required"`
}

// Open reports whether the shift has spare crew capacity.
func (s Shift) Open() bool { return s.CrewsAssigned < s.CrewsRequired }

// Crews summarizes worker availability at the location.
type Crews struct {
	Available int `json:"available"`
	Baseline  int `json:"baseline"` // normal staffing requirement
}

// Asset is a piece of infrastructure with a graded condition.
type Asset struct {
	Name          string    `json:"name"`
	Kind          string    `json:"kind"`      // pipeline, road, hydrant, drain
	Condition     string    `json:"condition"` // good, fair, poor, critical
	LastInspected time.Time `json:"last_inspected,omitempty"`
}

// Incident is a recent recorded event at the location.
type Incident struct {
	Kind       string    `json:"kind"`
	Severity   string    `json:"severity"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Snapshot is the bulk read for one location. Degraded is set when any
// underlying read failed; the affected sections are empty.
type Snapshot struct {
	Location        string      `json:"location"`
	Projects        []Project   `json:"projects,omitempty"`
	Shifts          []Shift     `json:"shifts,omitempty"`
	Crews           Crews       `json:"crews"`
	Assets          []Asset     `json:"assets,omitempty"`
	BudgetRemaining civic.Money `json:"budget_remaining"`
	Incidents       []Incident  `json:"incidents,omitempty"`
	Degraded        bool        `json:"degraded,omitempty"`
	RetrievedAt     time.Time   `json:"retrieved_at"`
}

// Completeness scores how much of the snapshot actually loaded, in [0,1].
// Feeds the data-completeness term of the confidence calculator.
func (s *Snapshot) Completeness() float64 {
	if s == nil {
		return 0
	}
	score := 0.0
	if len(s.Projects) > 0 {
		score += 0.2
	}
	if len(s.Shifts) > 0 {
		score += 0.2
	}
	if s.Crews.Baseline > 0 {
		score += 0.2
	}
	if len(s.Assets) > 0 {
		score += 0.2
	}
	if s.BudgetRemaining > 0 {
		score += 0.2
	}
	return score
}

// WorstAssetCondition returns the worst condition among assets of the given
// kind, or "" when none are known. Ordering: good < fair < poor < critical.
func (s *Snapshot) WorstAssetCondition(kind string) string {
	rank := map[string]int{"good": 0, "fair": 1, "poor": 2, "critical": 3}
	worst := ""
	for _, a := range s.Assets {
		if kind != "" && a.Kind != kind {
			continue
		}
		if worst == "" || rank[a.Condition] > rank[worst] {
			worst = a.Condition
		}
	}
	return worst
}

// Store is the read-only snapshot source.
type Store interface {
	// Snapshot bulk-reads context for a location. Implementations return a
	// partially filled snapshot with Degraded=true rather than an error when
	// individual reads fail; an error means nothing could be read.
	Snapshot(ctx context.Context, location string) (*Snapshot, error)
}
