package guardrail

import (
	"context"
	"errors"
	"testing"
	"time"

	"warden-hq/warden/pkg/approval"
	"warden-hq/warden/pkg/budget"
	"warden-hq/warden/pkg/policy/ast"
	"warden-hq/warden/pkg/policy/engine"
)

type stubDecider struct {
	effect ast.Effect
	ruleID string
}

func (d stubDecider) Decide(ctx context.Context, agent, action, contextID string, ec engine.Context) (*engine.Decision, string, error) {
	return &engine.Decision{Effect: d.effect, MatchedRuleID: d.ruleID, Reason: "stub"}, "control", nil
}

type fixture struct {
	executor  *Executor
	approvals *approval.Service
	tracker   *budget.Tracker
	notifier  *MemoryNotifier
	invoked   *int
}

func newFixture(t *testing.T, effect ast.Effect, spec ActionSpec, action ActionFunc) *fixture {
	t.Helper()

	signer, err := approval.NewHMACSigner([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewHMACSigner failed: %v", err)
	}
	svc, err := approval.NewService(approval.NewMemoryStore(), signer, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	invoked := 0
	registry := NewRegistry()
	wrapped := func(ctx context.Context, plan *Plan, charge ChargeFunc) (map[string]any, error) {
		invoked++
		return action(ctx, plan, charge)
	}
	if err := registry.Register(spec, wrapped); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	notifier := NewMemoryNotifier()
	tracker := budget.NewTracker()
	exec := NewExecutor(registry, stubDecider{effect: effect, ruleID: "r-1"}, svc, tracker, nil, WithNotifier(notifier))
	return &fixture{executor: exec, approvals: svc, tracker: tracker, notifier: notifier, invoked: &invoked}
}

func okAction(ctx context.Context, plan *Plan, charge ChargeFunc) (map[string]any, error) {
	return map[string]any{"done": true}, nil
}

func plan(contextID string) *Plan {
	return &Plan{
		ContextID:  contextID,
		Agent:      "triage",
		ActionType: "quarantine",
		Params:     map[string]any{"target": "host-1", "severity": 3},
		Context:    engine.Context{"risk_score": ast.Number(80)},
	}
}

// ============================================================================
// Pre-Execution Validation Tests
// ============================================================================

func TestExecute_UnknownActionNeverRuns(t *testing.T) {
	f := newFixture(t, ast.EffectAllow, ActionSpec{Type: "quarantine"}, okAction)

	p := plan("ctx-1")
	p.ActionType = "unregistered"
	_, err := f.executor.Execute(context.Background(), p, nil)

	var violation *ViolationError
	if !errors.As(err, &violation) || violation.Kind != ViolationUnknownAction {
		t.Fatalf("Expected unknown_action violation, got %v", err)
	}
	if *f.invoked != 0 {
		t.Error("Action must not be invoked for an unknown type")
	}
}

func TestExecute_ParamViolationsNeverRun(t *testing.T) {
	spec := ActionSpec{
		Type:           "quarantine",
		RequiredParams: map[string]ParamType{"target": ParamString, "severity": ParamNumber},
	}
	f := newFixture(t, ast.EffectAllow, spec, okAction)
	ctx := context.Background()

	missing := plan("ctx-1")
	delete(missing.Params, "target")
	var violation *ViolationError
	if _, err := f.executor.Execute(ctx, missing, nil); !errors.As(err, &violation) || violation.Kind != ViolationMissingParam {
		t.Errorf("Expected missing_param violation, got %v", err)
	}

	badType := plan("ctx-2")
	badType.Params["severity"] = "high"
	if _, err := f.executor.Execute(ctx, badType, nil); !errors.As(err, &violation) || violation.Kind != ViolationBadParamType {
		t.Errorf("Expected bad_param_type violation, got %v", err)
	}

	if *f.invoked != 0 {
		t.Error("Action must never run after a pre-execution violation")
	}
}

// ============================================================================
// Execution Tests
// ============================================================================

func TestExecute_AllowedPlanSucceeds(t *testing.T) {
	spec := ActionSpec{Type: "quarantine", Ceiling: budget.Ceiling{Ops: 10}}
	action := func(ctx context.Context, p *Plan, charge ChargeFunc) (map[string]any, error) {
		if err := charge(budget.Charge{Ops: 3}); err != nil {
			return nil, err
		}
		return map[string]any{"quarantined": p.Params["target"]}, nil
	}
	f := newFixture(t, ast.EffectAllow, spec, action)

	result, err := f.executor.Execute(context.Background(), plan("ctx-1"), nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.State != StateSucceeded {
		t.Errorf("Expected SUCCEEDED, got %s", result.State)
	}
	if result.Output["quarantined"] != "host-1" {
		t.Errorf("Unexpected output: %+v", result.Output)
	}
	if result.Usage.Ops != 3 {
		t.Errorf("Expected 3 ops recorded, got %d", result.Usage.Ops)
	}
	if result.Cohort != "control" {
		t.Errorf("Expected control cohort, got %s", result.Cohort)
	}
	if len(f.notifier.Violations()) != 0 {
		t.Errorf("Unexpected soft violations: %+v", f.notifier.Violations())
	}
}

func TestExecute_ActionErrorFails(t *testing.T) {
	action := func(ctx context.Context, p *Plan, charge ChargeFunc) (map[string]any, error) {
		return nil, errors.New("downstream unavailable")
	}
	f := newFixture(t, ast.EffectAllow, ActionSpec{Type: "quarantine"}, action)

	result, err := f.executor.Execute(context.Background(), plan("ctx-1"), nil)
	if err == nil {
		t.Fatal("Expected the action error to propagate")
	}
	if result == nil || result.State != StateFailed {
		t.Fatalf("Expected a FAILED result, got %+v", result)
	}
}

// The deadline derived from the time ceiling cancels a slow action
// cooperatively.
func TestExecute_DeadlineCancelsAction(t *testing.T) {
	spec := ActionSpec{Type: "quarantine", Ceiling: budget.Ceiling{TimeMillis: 30}}
	action := func(ctx context.Context, p *Plan, charge ChargeFunc) (map[string]any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return map[string]any{}, nil
		}
	}
	f := newFixture(t, ast.EffectAllow, spec, action)

	result, err := f.executor.Execute(context.Background(), plan("ctx-1"), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if result.State != StateFailed {
		t.Errorf("Expected FAILED after cancellation, got %s", result.State)
	}
}

func TestExecute_ChargeRefusedMidFlight(t *testing.T) {
	spec := ActionSpec{Type: "quarantine", Ceiling: budget.Ceiling{Ops: 2}}
	action := func(ctx context.Context, p *Plan, charge ChargeFunc) (map[string]any, error) {
		for i := 0; i < 3; i++ {
			if err := charge(budget.Charge{Ops: 1}); err != nil {
				return nil, err
			}
		}
		return map[string]any{}, nil
	}
	f := newFixture(t, ast.EffectAllow, spec, action)

	result, err := f.executor.Execute(context.Background(), plan("ctx-1"), nil)
	var exceeded *budget.BudgetExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("Expected BudgetExceededError, got %v", err)
	}
	if result.State != StateFailed || result.Usage.Ops != 2 {
		t.Errorf("Expected FAILED with 2 recorded ops, got %s usage %+v", result.State, result.Usage)
	}
}

// ============================================================================
// Suspension / Resume Tests
// ============================================================================

func TestExecute_DenySuspendsWithoutSideEffect(t *testing.T) {
	f := newFixture(t, ast.EffectDeny, ActionSpec{Type: "quarantine"}, okAction)

	result, err := f.executor.Execute(context.Background(), plan("ctx-1"), nil)
	if err != nil {
		t.Fatalf("Suspension must not be an error: %v", err)
	}
	if !result.Pending() || result.ApprovalID == "" {
		t.Fatalf("Expected a pending result with an approval id, got %+v", result)
	}
	if *f.invoked != 0 {
		t.Error("Action must not run while suspended")
	}
}

func TestExecute_ResumeWithApprovedGrant(t *testing.T) {
	f := newFixture(t, ast.EffectDeny, ActionSpec{Type: "quarantine"}, okAction)
	ctx := context.Background()

	p := plan("ctx-1")
	suspended, err := f.executor.Execute(ctx, p, nil)
	if err != nil {
		t.Fatalf("Suspension failed: %v", err)
	}

	token, err := f.approvals.Approve(ctx, suspended.ApprovalID, approval.DecisionApprove, "verified")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	result, err := f.executor.Execute(ctx, p, &Grant{ApprovalID: suspended.ApprovalID, Token: token})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if result.State != StateSucceeded {
		t.Errorf("Expected SUCCEEDED after resume, got %s", result.State)
	}
	if *f.invoked != 1 {
		t.Errorf("Expected exactly one invocation, got %d", *f.invoked)
	}

	// The grant is consumed: a replay must fail.
	_, err = f.executor.Execute(ctx, plan("ctx-2"), &Grant{ApprovalID: suspended.ApprovalID, Token: token})
	if !approval.IsInvalidApproval(err, approval.ReasonConsumed) {
		t.Errorf("Expected consumed grant rejection, got %v", err)
	}
}

// A failed budget reservation must not burn the one-time grant: the same
// token resumes the plan once the reservation can be taken.
func TestExecute_ReservationFailureKeepsGrant(t *testing.T) {
	f := newFixture(t, ast.EffectDeny, ActionSpec{Type: "quarantine"}, okAction)
	ctx := context.Background()

	p := plan("ctx-1")
	suspended, err := f.executor.Execute(ctx, p, nil)
	if err != nil {
		t.Fatalf("Suspension failed: %v", err)
	}
	token, err := f.approvals.Approve(ctx, suspended.ApprovalID, approval.DecisionApprove, "verified")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	grant := &Grant{ApprovalID: suspended.ApprovalID, Token: token}

	// Another execution already holds this context id.
	held, err := f.tracker.Reserve(p.ContextID, budget.Ceiling{})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	if _, err := f.executor.Execute(ctx, p, grant); err == nil {
		t.Fatal("Expected the duplicate reservation to fail the resume")
	}
	if *f.invoked != 0 {
		t.Error("Action must not run when the reservation is refused")
	}

	// The grant survived: once the slot frees, the same token works.
	f.tracker.Release(held)
	result, err := f.executor.Execute(ctx, p, grant)
	if err != nil {
		t.Fatalf("Resume after release failed: %v", err)
	}
	if result.State != StateSucceeded {
		t.Errorf("Expected SUCCEEDED, got %s", result.State)
	}
	if *f.invoked != 1 {
		t.Errorf("Expected exactly one invocation, got %d", *f.invoked)
	}
}

func TestExecute_GrantMustCoverPlan(t *testing.T) {
	f := newFixture(t, ast.EffectDeny, ActionSpec{Type: "quarantine"}, okAction)
	ctx := context.Background()

	p := plan("ctx-1")
	suspended, _ := f.executor.Execute(ctx, p, nil)
	token, _ := f.approvals.Approve(ctx, suspended.ApprovalID, approval.DecisionApprove, "")

	// Same grant, different policy context: rejected before execution.
	altered := plan("ctx-1")
	altered.Context = engine.Context{"risk_score": ast.Number(5)}
	_, err := f.executor.Execute(ctx, altered, &Grant{ApprovalID: suspended.ApprovalID, Token: token})

	var mismatch *GrantMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Expected GrantMismatchError, got %v", err)
	}
	if *f.invoked != 0 {
		t.Error("Action must not run on a non-covering grant")
	}
}

func TestExecute_NoOverrideDeniesHard(t *testing.T) {
	spec := ActionSpec{Type: "quarantine", NoOverride: true}
	f := newFixture(t, ast.EffectDeny, spec, okAction)

	_, err := f.executor.Execute(context.Background(), plan("ctx-1"), nil)
	var denied *PolicyDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("Expected PolicyDeniedError, got %v", err)
	}
	if denied.RuleID != "r-1" {
		t.Errorf("Expected the matched rule id, got %+v", denied)
	}
	if *f.invoked != 0 {
		t.Error("Action must not run on a final deny")
	}
}

// ============================================================================
// Soft Violation Tests
// ============================================================================

func TestExecute_NilOutputIsSoftViolation(t *testing.T) {
	action := func(ctx context.Context, p *Plan, charge ChargeFunc) (map[string]any, error) {
		return nil, nil
	}
	f := newFixture(t, ast.EffectAllow, ActionSpec{Type: "quarantine"}, action)

	result, err := f.executor.Execute(context.Background(), plan("ctx-1"), nil)
	if err != nil {
		t.Fatalf("Soft violations must not fail the execution: %v", err)
	}
	if result.State != StateSucceeded {
		t.Errorf("Expected SUCCEEDED, got %s", result.State)
	}

	violations := f.notifier.Violations()
	if len(violations) != 1 || violations[0].Kind != ViolationBadResultShape {
		t.Fatalf("Expected one bad_result_shape violation, got %+v", violations)
	}
	if !violations[0].Soft {
		t.Error("Post-execution violations must be marked soft")
	}
}
