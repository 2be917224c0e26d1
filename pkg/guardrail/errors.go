package guardrail

import "fmt"

// ViolationKind classifies a guardrail violation.
type ViolationKind string

const (
	// Pre-execution kinds: the action was never invoked.
	ViolationUnknownAction ViolationKind = "unknown_action"
	ViolationMissingParam  ViolationKind = "missing_param"
	ViolationBadParamType  ViolationKind = "bad_param_type"

	// Post-execution kinds: the side effect already happened.
	ViolationBadResultShape     ViolationKind = "bad_result_shape"
	ViolationPostBudgetExceeded ViolationKind = "post_budget_exceeded"
)

// ViolationError is a typed guardrail violation. Soft marks post-execution
// violations, which are reported but do not fail the result.
type ViolationError struct {
	Kind       ViolationKind
	ContextID  string
	Agent      string
	ActionType string
	Detail     string
	Soft       bool
}

// Error returns the violation message.
func (e *ViolationError) Error() string {
	return fmt.Sprintf("guardrail violation %s on %s/%s (%s): %s",
		e.Kind, e.Agent, e.ActionType, e.ContextID, e.Detail)
}

// PolicyDeniedError indicates the gating policy decision was deny and no
// grant was presented.
type PolicyDeniedError struct {
	Agent      string
	ActionType string
	RuleID     string
	Reason     string
}

// Error returns the denial message.
func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("policy denied %s/%s by rule %q: %s", e.Agent, e.ActionType, e.RuleID, e.Reason)
}

// GrantMismatchError indicates a presented grant does not cover the plan's
// exact (agent, action, context) triple.
type GrantMismatchError struct {
	ApprovalID string
	Agent      string
	ActionType string
}

// Error returns the mismatch message.
func (e *GrantMismatchError) Error() string {
	return fmt.Sprintf("approval %s does not cover %s/%s with this context", e.ApprovalID, e.Agent, e.ActionType)
}
