package guardrail

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"warden-hq/warden/pkg/budget"
	"warden-hq/warden/pkg/policy/ast"
	"warden-hq/warden/pkg/policy/engine"
)

// State is an execution's position in the guardrail state machine.
type State string

const (
	StatePending   State = "PENDING"
	StateApproved  State = "APPROVED"
	StateDenied    State = "DENIED"
	StateExecuting State = "EXECUTING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
)

// Plan is one proposed action awaiting guarded execution.
type Plan struct {
	// ContextID identifies the execution context. It is the budget
	// reservation key and the canary bucketing key, so it must be unique
	// per in-flight execution and stable across a pending-approval resume.
	ContextID string

	Agent      string
	ActionType string

	// Params are the action's inputs, validated against the action spec.
	Params map[string]any

	// Context carries the typed fields policy conditions evaluate against.
	Context engine.Context

	// Confidence is the proposer's confidence in [0,1].
	Confidence float64

	// Rationale is the proposer's feature attribution, kept for audit and
	// later labeling.
	Rationale map[string]float64
}

// Validate checks the plan's required fields.
func (p *Plan) Validate() error {
	if p.ContextID == "" {
		return fmt.Errorf("plan requires a context id")
	}
	if p.Agent == "" {
		return fmt.Errorf("plan %s requires an agent", p.ContextID)
	}
	if p.ActionType == "" {
		return fmt.Errorf("plan %s requires an action type", p.ContextID)
	}
	return nil
}

// ContextSnapshot returns a canonical encoding of the policy context. The
// same context always yields the same bytes, so approval coverage checks
// survive a pending-approval round trip.
func (p *Plan) ContextSnapshot() []byte {
	keys := make([]string, 0, len(p.Context))
	for k := range p.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	type entry struct {
		Key  string  `json:"k"`
		Kind string  `json:"t"`
		Str  string  `json:"s,omitempty"`
		Num  float64 `json:"n,omitempty"`
		Bool bool    `json:"b,omitempty"`
	}
	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		v := p.Context[k]
		e := entry{Key: k, Kind: string(v.Kind)}
		switch v.Kind {
		case ast.ValueString:
			e.Str = v.Str
		case ast.ValueNumber:
			e.Num = v.Num
		case ast.ValueBool:
			e.Bool = v.Bool
		}
		entries = append(entries, e)
	}

	payload := struct {
		Agent   string  `json:"agent"`
		Action  string  `json:"action"`
		Entries []entry `json:"context"`
	}{Agent: p.Agent, Action: p.ActionType, Entries: entries}

	b, _ := json.Marshal(payload)
	return b
}

// Grant is a consumed-on-use approval reference presented when resuming a
// denied plan.
type Grant struct {
	ApprovalID string
	Token      string
}

// Result is the outcome of one Execute call.
type Result struct {
	ContextID string
	State     State

	// Decision is the policy decision that gated the execution.
	Decision *engine.Decision

	// Cohort is "canary" or "control" when bundle routing applied.
	Cohort string

	// ApprovalID is set on a pending result: the approval request the
	// caller must have approved before resuming.
	ApprovalID string

	// Output is the action's structured result. Nil unless SUCCEEDED.
	Output map[string]any

	Usage    budget.Usage
	Duration time.Duration
}

// Pending reports whether the plan is suspended awaiting approval.
func (r *Result) Pending() bool {
	return r.State == StatePending
}
