package engine

import (
	"errors"
	"fmt"

	"warden-hq/warden/pkg/policy/ast"
)

var (
	// ErrNilSource indicates the engine was constructed without a rule source.
	ErrNilSource = errors.New("rule source cannot be nil")

	// ErrClosed indicates the engine has been shut down.
	ErrClosed = errors.New("engine is closed")
)

// DeniedError is returned by callers that convert a deny decision into an
// error. It carries the rule that produced the denial.
type DeniedError struct {
	Agent  string
	Action string
	RuleID string
	Reason string
}

// Error returns the error message.
func (e *DeniedError) Error() string {
	return fmt.Sprintf("policy denied %s/%s: rule %s: %s", e.Agent, e.Action, e.RuleID, e.Reason)
}

// ConditionError indicates a condition could not be evaluated against the
// given context, typically a type mismatch.
type ConditionError struct {
	RuleID string
	Field  string
	Cause  error
}

// Error returns the error message.
func (e *ConditionError) Error() string {
	return fmt.Sprintf("rule %s: condition error on field %q: %v", e.RuleID, e.Field, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ConditionError) Unwrap() error {
	return e.Cause
}

// ReloadError indicates a rule set reload failure. The previous snapshot
// stays active when a reload fails.
type ReloadError struct {
	Source string
	Cause  error
}

// Error returns the error message.
func (e *ReloadError) Error() string {
	return fmt.Sprintf("rule reload from %s failed: %v", e.Source, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ReloadError) Unwrap() error {
	return e.Cause
}

// NewDeniedError builds a DeniedError from a deny decision.
func NewDeniedError(agent, action string, d *Decision) *DeniedError {
	if d == nil || d.Effect != ast.EffectDeny {
		return nil
	}
	return &DeniedError{Agent: agent, Action: action, RuleID: d.MatchedRuleID, Reason: d.Reason}
}
