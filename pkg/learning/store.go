package learning

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is the deduplicated labeled-example repository. Add rejects an
// example whose dedupe key already exists unless the newcomer carries a
// strictly newer timestamp and equal or higher confidence.
type Store interface {
	// Add inserts or supersedes an example. It returns false when the
	// example was rejected as a stale or lower-confidence duplicate.
	Add(ctx context.Context, e *Example) (bool, error)

	// Get returns the example with the given identity, or ErrExampleNotFound.
	Get(ctx context.Context, source, sourceID string) (*Example, error)

	// Contains reports whether the identity is present.
	Contains(ctx context.Context, source, sourceID string) (bool, error)

	// ListByAgent returns the agent's examples at or after since, ordered
	// by (timestamp, key) ascending for deterministic iteration.
	ListByAgent(ctx context.Context, agent string, since time.Time) ([]*Example, error)

	// Count returns how many examples the agent has.
	Count(ctx context.Context, agent string) (int, error)

	// Agents returns every agent with at least one example, sorted.
	Agents(ctx context.Context) ([]string, error)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	examples map[string]*Example
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{examples: make(map[string]*Example)}
}

// Add inserts or supersedes an example.
func (s *MemoryStore) Add(ctx context.Context, e *Example) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, exists := s.examples[e.Key()]; exists && !e.supersedes(old) {
		return false, nil
	}
	s.examples[e.Key()] = e.clone()
	return true, nil
}

// Get returns the example with the given identity.
func (s *MemoryStore) Get(ctx context.Context, source, sourceID string) (*Example, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.examples[source+"/"+sourceID]
	if !ok {
		return nil, ErrExampleNotFound
	}
	return e.clone(), nil
}

// Contains reports whether the identity is present.
func (s *MemoryStore) Contains(ctx context.Context, source, sourceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.examples[source+"/"+sourceID]
	return ok, nil
}

// ListByAgent returns the agent's examples at or after since.
func (s *MemoryStore) ListByAgent(ctx context.Context, agent string, since time.Time) ([]*Example, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Example
	for _, e := range s.examples {
		if e.Agent != agent || e.Timestamp.Before(since) {
			continue
		}
		out = append(out, e.clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Key() < out[j].Key()
	})
	return out, nil
}

// Count returns how many examples the agent has.
func (s *MemoryStore) Count(ctx context.Context, agent string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.examples {
		if e.Agent == agent {
			count++
		}
	}
	return count, nil
}

// Agents returns every agent with at least one example.
func (s *MemoryStore) Agents(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]bool)
	for _, e := range s.examples {
		set[e.Agent] = true
	}
	out := make([]string, 0, len(set))
	for agent := range set {
		out = append(out, agent)
	}
	sort.Strings(out)
	return out, nil
}
