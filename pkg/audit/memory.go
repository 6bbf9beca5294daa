package audit

import (
	"context"
	"sync"
)

// MemoryStore is the in-memory audit log for tests and single-node runs.
type MemoryStore struct {
	mu      sync.RWMutex
	ordered []*Record
	byID    map[string]*Record
	byJob   map[string]*Record
}

// NewMemoryStore creates an empty log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Record),
		byJob: make(map[string]*Record),
	}
}

func (s *MemoryStore) Append(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.ordered = append(s.ordered, &cp)
	s.byID[cp.ID] = &cp
	if cp.JobID != "" {
		s.byJob[cp.JobID] = &cp
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ByJob(ctx context.Context, jobID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byJob[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.ordered) {
		limit = len(s.ordered)
	}
	out := make([]*Record, 0, limit)
	for i := len(s.ordered) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.ordered[i]
		out = append(out, &cp)
	}
	return out, nil
}
