package bundle

import (
	"context"
	"sync"
)

// MemoryStats aggregates per-cohort execution outcomes in memory. The
// guardrail executor records one outcome per finished execution; the
// regression guard reads the accumulated cohorts. Reset clears an agent's
// counters, typically when a new canary is applied.
type MemoryStats struct {
	mu      sync.Mutex
	byAgent map[string]map[string]*Cohort
}

// NewMemoryStats creates an empty collector.
func NewMemoryStats() *MemoryStats {
	return &MemoryStats{byAgent: make(map[string]map[string]*Cohort)}
}

// RecordOutcome adds one execution outcome to the agent's cohort.
func (s *MemoryStats) RecordOutcome(agent, cohort string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cohorts, ok := s.byAgent[agent]
	if !ok {
		cohorts = make(map[string]*Cohort)
		s.byAgent[agent] = cohorts
	}
	c, ok := cohorts[cohort]
	if !ok {
		c = &Cohort{}
		cohorts[cohort] = c
	}
	c.Samples++
	if success {
		c.Successes++
	}
}

// Cohorts returns the accumulated canary and control cohorts.
func (s *MemoryStats) Cohorts(ctx context.Context, agent string) (Cohort, Cohort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var canary, control Cohort
	if cohorts, ok := s.byAgent[agent]; ok {
		if c, ok := cohorts["canary"]; ok {
			canary = *c
		}
		if c, ok := cohorts["control"]; ok {
			control = *c
		}
	}
	return canary, control, nil
}

// Reset clears the agent's counters.
func (s *MemoryStats) Reset(agent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byAgent, agent)
}
