package engine

import (
	"time"

	"warden-hq/warden/pkg/policy/ast"
)

// Context is the set of typed fields a condition tree evaluates against.
type Context map[string]ast.Value

// Decision is the outcome of evaluating a rule set for one
// (agent, action, context) triple.
type Decision struct {
	// Effect is allow or deny.
	Effect ast.Effect

	// MatchedRuleID identifies the winning rule. Empty when no rule matched
	// and the default effect applied.
	MatchedRuleID string

	// Reason is the winning rule's reason, or "default allow".
	Reason string

	// Default is true when no rule matched.
	Default bool

	// EvaluationTime is how long the evaluation took.
	EvaluationTime time.Duration
}

// Allowed reports whether the decision permits the action.
func (d *Decision) Allowed() bool {
	return d.Effect == ast.EffectAllow
}

// Snapshot is an immutable, evaluation-ordered view of a loaded rule set.
// Snapshots are never mutated after construction; reloads publish a new one.
type Snapshot struct {
	rules    []*ast.Rule
	version  string
	loadTime time.Time
}

// Rules returns the snapshot's rules in evaluation order. Callers must not
// mutate the returned slice.
func (s *Snapshot) Rules() []*ast.Rule {
	return s.rules
}

// Version is a content hash identifying the snapshot.
func (s *Snapshot) Version() string {
	return s.version
}

// LoadTime is when the snapshot was published.
func (s *Snapshot) LoadTime() time.Time {
	return s.loadTime
}
