package ratelimit

import (
	"context"
	"sync"
	"time"
)

// QuotaState is the budget bookkeeping for one provider.
type QuotaState struct {
	WindowStart      time.Time
	RequestsInWindow int
	DayStart         time.Time
	DailyBudgetUsed  int
}

// QuotaStore persists QuotaState per provider. The Limiter is the only
// writer; swapping the store for a shared one lets several processes
// draw from the same budget.
type QuotaStore interface {
	Load(ctx context.Context, provider string) (QuotaState, error)
	Save(ctx context.Context, provider string, state QuotaState) error
}

// MemoryStore keeps quota state in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]QuotaState
}

// NewMemoryStore creates an empty in-memory quota store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]QuotaState)}
}

// Load returns the stored state, or the zero state for an unknown provider.
func (s *MemoryStore) Load(_ context.Context, provider string) (QuotaState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[provider], nil
}

// Save replaces the stored state for provider.
func (s *MemoryStore) Save(_ context.Context, provider string, state QuotaState) error {
	s.mu.Lock()
	s.states[provider] = state
	s.mu.Unlock()
	return nil
}

var _ QuotaStore = (*MemoryStore)(nil)
