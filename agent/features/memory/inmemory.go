package memory

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryStore keeps facts in process memory.
type InMemoryStore struct {
	mu    sync.RWMutex
	facts map[string]map[string]Fact
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{facts: make(map[string]map[string]Fact)}
}

func (s *InMemoryStore) Get(ctx context.Context, subject string) ([]Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Fact, 0, len(s.facts[subject]))
	for _, f := range s.facts[subject] {
		out = append(out, f)
	}
	sortFacts(out)
	return out, nil
}

func (s *InMemoryStore) Put(ctx context.Context, facts ...Fact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range facts {
		if f.Subject == "" || f.Key == "" {
			return fmt.Errorf("fact needs subject and key: %+v", f)
		}
		m, ok := s.facts[f.Subject]
		if !ok {
			m = make(map[string]Fact)
			s.facts[f.Subject] = m
		}
		m[f.Key] = f
	}
	return nil
}
