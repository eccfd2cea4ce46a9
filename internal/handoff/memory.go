package handoff

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps handoffs in process memory. It is the default for local
// development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Handoff
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Handoff)}
}

func (s *MemoryStore) Save(_ context.Context, h Handoff) error {
	if strings.TrimSpace(h.CallID) == "" {
		return fmt.Errorf("handoff: call_id required")
	}
	s.mu.Lock()
	s.items[h.CallID] = h
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, callID string) (*Handoff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.items[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return &h, nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Handoff, error) {
	s.mu.RLock()
	out := make([]Handoff, 0, len(s.items))
	for _, h := range s.items {
		out = append(out, h)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
