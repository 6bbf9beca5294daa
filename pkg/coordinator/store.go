package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/civicmind/civicmind/pkg/civic"
)

// ErrNotFound means no coordination decision exists under the given ID.
var ErrNotFound = errors.New("coordinator: decision not found")

// DecisionStore persists coordination decisions. The only mutation after
// insert is the status transition.
type DecisionStore interface {
	Insert(ctx context.Context, dec *civic.CoordinationDecision) error
	Get(ctx context.Context, id string) (*civic.CoordinationDecision, error)

	// Active returns decisions still in the active state created after the
	// cutoff.
	Active(ctx context.Context, since time.Time) ([]*civic.CoordinationDecision, error)

	// SetStatus transitions a decision. Returns ErrNotFound for unknown IDs;
	// transitioning an already non-active decision is a no-op.
	SetStatus(ctx context.Context, id string, status civic.CoordinationStatus) error
}

// MemoryDecisionStore keeps coordination decisions in memory.
type MemoryDecisionStore struct {
	mu   sync.RWMutex
	byID map[string]*civic.CoordinationDecision
}

// NewMemoryDecisionStore creates an empty store.
func NewMemoryDecisionStore() *MemoryDecisionStore {
	return &MemoryDecisionStore{byID: make(map[string]*civic.CoordinationDecision)}
}

func (s *MemoryDecisionStore) Insert(ctx context.Context, dec *civic.CoordinationDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *dec
	s.byID[cp.ID] = &cp
	return nil
}

func (s *MemoryDecisionStore) Get(ctx context.Context, id string) (*civic.CoordinationDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dec, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *dec
	return &cp, nil
}

func (s *MemoryDecisionStore) Active(ctx context.Context, since time.Time) ([]*civic.CoordinationDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*civic.CoordinationDecision
	for _, dec := range s.byID {
		if dec.Status == civic.CoordinationActive && dec.CreatedAt.After(since) {
			cp := *dec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryDecisionStore) SetStatus(ctx context.Context, id string, status civic.CoordinationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if dec.Status != civic.CoordinationActive {
		return nil
	}
	dec.Status = status
	return nil
}
