package contextstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/civicmind/civicmind/pkg/civic"
)

// MemoryStore is an in-memory snapshot source. The zero-config serve mode
// and the test suites run on it.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*Snapshot)}
}

// Put installs or replaces the snapshot for a location.
func (s *MemoryStore) Put(location string, snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Location = location
	s.snapshots[normalize(location)] = snap
}

// Snapshot returns a copy of the stored snapshot. Unknown locations yield an
// empty, degraded snapshot: the pipeline carries on with no data rather than
// failing.
func (s *MemoryStore) Snapshot(_ context.Context, location string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[normalize(location)]
	if !ok {
		return &Snapshot{Location: location, Degraded: true, RetrievedAt: time.Now()}, nil
	}
	cp := *snap
	cp.RetrievedAt = time.Now()
	return &cp, nil
}

func normalize(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}

// Seeded returns a store pre-loaded with a representative set of city zones,
// for demos and zero-config startups.
func Seeded() *MemoryStore {
	s := NewMemoryStore()
	s.Put("Downtown", &Snapshot{
		Projects: []Project{
			{Name: "Main trunk relining", AgentType: civic.AgentWater, Status: "in_progress", Cost: civic.Lakh(120)},
		},
		Shifts: []Shift{
			{Name: "morning", CrewsAssigned: 4, CrewsRequired: 4},
			{Name: "evening", CrewsAssigned: 2, CrewsRequired: 4},
		},
		Crews:           Crews{Available: 11, Baseline: 8},
		Assets:          []Asset{{Name: "DT-P1", Kind: "pipeline", Condition: "fair"}, {Name: "DT-R4", Kind: "road", Condition: "good"}},
		BudgetRemaining: civic.Crore(2),
		Incidents:       []Incident{{Kind: "low_pressure", Severity: "minor", OccurredAt: time.Now().Add(-36 * time.Hour)}},
	})
	s.Put("Industrial Zone", &Snapshot{
		Shifts: []Shift{
			{Name: "morning", CrewsAssigned: 3, CrewsRequired: 3},
			{Name: "night", CrewsAssigned: 1, CrewsRequired: 2},
		},
		Crews:           Crews{Available: 5, Baseline: 6},
		Assets:          []Asset{{Name: "IZ-H2", Kind: "hydrant", Condition: "poor"}},
		BudgetRemaining: civic.Lakh(80),
		Incidents:       []Incident{{Kind: "chemical_spill", Severity: "major", OccurredAt: time.Now().Add(-6 * time.Hour)}},
	})
	s.Put("Riverside", &Snapshot{
		Crews:           Crews{Available: 7, Baseline: 5},
		Shifts:          []Shift{{Name: "morning", CrewsAssigned: 2, CrewsRequired: 3}},
		Assets:          []Asset{{Name: "RS-D1", Kind: "drain", Condition: "fair"}},
		BudgetRemaining: civic.Crore(1),
	})
	return s
}
