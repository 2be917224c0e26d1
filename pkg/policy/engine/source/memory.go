package source

import (
	"context"
	"sync"

	"warden-hq/warden/pkg/policy/ast"
	"warden-hq/warden/pkg/policy/engine"
)

// MemorySource serves a rule set held in memory. Replace publishes a new rule
// set and signals watchers, which makes it useful both for tests and for
// callers that manage rules programmatically (e.g. bundle promotion).
type MemorySource struct {
	mu       sync.Mutex
	rules    []*ast.Rule
	watchers []chan engine.ChangeEvent
}

// NewMemorySource creates a memory source with an initial rule set.
func NewMemorySource(rules []*ast.Rule) *MemorySource {
	return &MemorySource{rules: rules}
}

// Name identifies the source.
func (s *MemorySource) Name() string {
	return "memory"
}

// Load returns a copy of the current rule set.
func (s *MemorySource) Load(ctx context.Context) ([]*ast.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules := make([]*ast.Rule, len(s.rules))
	copy(rules, s.rules)
	return rules, nil
}

// Watch returns a channel that receives an event whenever Replace is called.
func (s *MemorySource) Watch(ctx context.Context) (<-chan engine.ChangeEvent, error) {
	ch := make(chan engine.ChangeEvent, 1)

	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, w := range s.watchers {
			if w == ch {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

// Replace swaps the rule set and notifies watchers.
func (s *MemorySource) Replace(rules []*ast.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = rules
	for _, w := range s.watchers {
		select {
		case w <- engine.ChangeEvent{Path: "memory"}:
		default:
			// Watcher is behind; it will pick up the latest rules on the
			// next event it processes.
		}
	}
}
