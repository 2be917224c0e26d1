// Package engine evaluates policy rules to authorize agent actions.
//
// The engine holds an immutable rule-set snapshot behind an atomic pointer.
// Evaluations read the snapshot without locking; reloads (manual or triggered
// by a RuleSource watch event) build a fresh snapshot and publish it with a
// single pointer swap, so concurrent evaluations never observe a half-updated
// rule set.
//
// Evaluation is deterministic: rules are considered in descending priority
// order with rule id ascending as the tie-break, the first matching rule wins,
// and at equal priority a matching deny rule overrides a matching allow rule.
// If no rule matches, the decision defaults to allow.
package engine
