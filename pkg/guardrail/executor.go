package guardrail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"warden-hq/warden/pkg/approval"
	"warden-hq/warden/pkg/audit"
	"warden-hq/warden/pkg/budget"
	"warden-hq/warden/pkg/policy/engine"
	"warden-hq/warden/pkg/telemetry/metrics"
	"warden-hq/warden/pkg/telemetry/tracing"
)

// ChargeFunc charges the execution's budget. Actions call it as they
// consume operations or spend; a BudgetExceededError return means the charge
// was refused and the action should stop.
type ChargeFunc func(charge budget.Charge) error

// ActionFunc performs the side effect. It must honor ctx cancellation: the
// executor derives a deadline from the time-budget ceiling and aborts
// cooperatively when it is crossed.
type ActionFunc func(ctx context.Context, plan *Plan, charge ChargeFunc) (map[string]any, error)

// OutcomeRecorder receives one record per finished execution, keyed by the
// canary cohort that served it. The regression guard's cohort stats
// implement it.
type OutcomeRecorder interface {
	RecordOutcome(agent, cohort string, success bool)
}

// PolicyDecider gates executions. The bundle manager satisfies it with
// canary routing; a bare policy engine can be adapted for setups without
// bundles.
type PolicyDecider interface {
	Decide(ctx context.Context, agent, action, contextID string, ec engine.Context) (*engine.Decision, string, error)
}

// EngineDecider adapts a policy engine into a PolicyDecider with no canary
// routing.
type EngineDecider struct {
	Engine *engine.Engine
}

// Decide evaluates the engine's active snapshot; the cohort is always
// control.
func (d EngineDecider) Decide(ctx context.Context, agent, action, contextID string, ec engine.Context) (*engine.Decision, string, error) {
	decision, err := d.Engine.Evaluate(ctx, agent, action, ec)
	return decision, "control", err
}

// Executor runs plans through the guardrail state machine.
type Executor struct {
	registry  *Registry
	decider   PolicyDecider
	approvals *approval.Service
	tracker   *budget.Tracker
	notifier  Notifier
	audit     audit.Recorder
	metrics   *metrics.GovernanceMetrics
	tracer    *tracing.Tracer
	outcomes  OutcomeRecorder
	logger    *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithNotifier overrides the soft-violation sink.
func WithNotifier(n Notifier) ExecutorOption {
	return func(e *Executor) { e.notifier = n }
}

// WithAudit attaches an audit recorder.
func WithAudit(recorder audit.Recorder) ExecutorOption {
	return func(e *Executor) { e.audit = recorder }
}

// WithMetrics attaches governance metrics.
func WithMetrics(gm *metrics.GovernanceMetrics) ExecutorOption {
	return func(e *Executor) { e.metrics = gm }
}

// WithTracer attaches a tracer.
func WithTracer(t *tracing.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = t }
}

// WithOutcomes attaches a per-cohort outcome recorder.
func WithOutcomes(r OutcomeRecorder) ExecutorOption {
	return func(e *Executor) { e.outcomes = r }
}

// NewExecutor wires the guardrail pipeline.
func NewExecutor(registry *Registry, decider PolicyDecider, approvals *approval.Service, tracker *budget.Tracker, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		registry:  registry,
		decider:   decider,
		approvals: approvals,
		tracker:   tracker,
		logger:    logger.With("component", "guardrail.executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = NewLogNotifier(logger)
	}
	return e
}

// Execute runs one plan. A nil grant on a policy deny suspends the plan: the
// executor files an approval request and returns a PENDING result without
// invoking the action. Resubmitting the same plan with the approved grant
// resumes it. Pre-execution failures return a typed error and the action is
// never invoked.
func (e *Executor) Execute(ctx context.Context, plan *Plan, grant *Grant) (*Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	ctx, span := e.startSpan(ctx, plan)
	var retErr error
	defer func() { tracing.EndWithError(span, retErr) }()

	spec, action, ok := e.registry.Lookup(plan.ActionType)
	if !ok {
		retErr = &ViolationError{
			Kind:       ViolationUnknownAction,
			ContextID:  plan.ContextID,
			Agent:      plan.Agent,
			ActionType: plan.ActionType,
			Detail:     "no action registered for this type",
		}
		e.recordFailure(plan, retErr)
		return nil, retErr
	}

	if v := validateParams(plan, spec); v != nil {
		retErr = v
		e.recordFailure(plan, v)
		return nil, v
	}

	decision, cohort, err := e.decider.Decide(ctx, plan.Agent, plan.ActionType, plan.ContextID, plan.Context)
	if err != nil {
		retErr = fmt.Errorf("policy evaluation failed for %s: %w", plan.ContextID, err)
		return nil, retErr
	}
	if e.metrics != nil {
		e.metrics.RecordDecision(decision.MatchedRuleID, string(decision.Effect))
	}

	if !decision.Allowed() {
		if spec.NoOverride {
			err := &PolicyDeniedError{
				Agent:      plan.Agent,
				ActionType: plan.ActionType,
				RuleID:     decision.MatchedRuleID,
				Reason:     decision.Reason,
			}
			e.recordFailure(plan, err)
			retErr = err
			return nil, err
		}
		if grant == nil {
			result, err := e.suspend(ctx, plan, decision, cohort)
			if err != nil {
				retErr = err
				return nil, err
			}
			return result, nil
		}
	}

	ec, err := e.tracker.Reserve(plan.ContextID, spec.Ceiling)
	if err != nil {
		retErr = err
		return nil, err
	}
	defer e.tracker.Release(ec)

	// The grant is consumed only after the reservation is held, so a refused
	// reservation leaves the one-time token intact for a later resume.
	if !decision.Allowed() {
		if err := e.consumeGrant(ctx, plan, grant, decision); err != nil {
			retErr = err
			return nil, err
		}
	}

	if err := e.tracker.Check(ec); err != nil {
		retErr = err
		e.recordFailure(plan, err)
		return nil, err
	}

	return e.run(ctx, plan, action, ec, decision, cohort)
}

// suspend files an approval request for a denied plan and returns the
// PENDING result the caller hands back to the agent.
func (e *Executor) suspend(ctx context.Context, plan *Plan, decision *engine.Decision, cohort string) (*Result, error) {
	req, err := e.approvals.Request(ctx, plan.Agent, plan.ActionType, plan.ContextSnapshot(), decision.Reason)
	if err != nil {
		return nil, fmt.Errorf("failed to file approval request for %s: %w", plan.ContextID, err)
	}
	e.record(ctx, plan, "execution_suspended", "pending", map[string]string{
		"approval_id": req.ID,
		"rule_id":     decision.MatchedRuleID,
	})
	e.logger.Info("execution suspended pending approval",
		"context_id", plan.ContextID,
		"agent", plan.Agent,
		"action_type", plan.ActionType,
		"approval_id", req.ID,
	)
	return &Result{
		ContextID:  plan.ContextID,
		State:      StatePending,
		Decision:   decision,
		Cohort:     cohort,
		ApprovalID: req.ID,
	}, nil
}

// consumeGrant burns the one-time grant and verifies it covers the plan.
func (e *Executor) consumeGrant(ctx context.Context, plan *Plan, grant *Grant, decision *engine.Decision) error {
	req, err := e.approvals.Consume(ctx, grant.ApprovalID, grant.Token)
	if err != nil {
		e.recordFailure(plan, err)
		return err
	}
	if !req.Covers(plan.Agent, plan.ActionType, plan.ContextSnapshot()) {
		err := &GrantMismatchError{ApprovalID: grant.ApprovalID, Agent: plan.Agent, ActionType: plan.ActionType}
		e.recordFailure(plan, err)
		return err
	}
	e.record(ctx, plan, "execution_resumed", "approved", map[string]string{
		"approval_id": req.ID,
		"rule_id":     decision.MatchedRuleID,
	})
	return nil
}

// run drives the EXECUTING phase and the post-execution soft checks.
func (e *Executor) run(ctx context.Context, plan *Plan, action ActionFunc, ec *budget.ExecutionContext, decision *engine.Decision, cohort string) (*Result, error) {
	execCtx := ctx
	if deadline, ok := ec.Deadline(); ok {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	charge := func(c budget.Charge) error {
		return e.tracker.Charge(ec, c)
	}

	start := time.Now()
	output, actionErr := action(execCtx, plan, charge)
	duration := time.Since(start)

	// Elapsed wall time is charged after the fact; the deadline above is
	// what enforces the ceiling mid-flight.
	timeErr := e.tracker.Charge(ec, budget.Charge{TimeMillis: duration.Milliseconds()})

	result := &Result{
		ContextID: plan.ContextID,
		Decision:  decision,
		Cohort:    cohort,
		Usage:     ec.Usage(),
		Duration:  duration,
	}

	if e.outcomes != nil {
		e.outcomes.RecordOutcome(plan.Agent, cohort, actionErr == nil)
	}

	if actionErr != nil {
		result.State = StateFailed
		if e.metrics != nil {
			e.metrics.RecordExecution(plan.ActionType, "failed", duration)
			e.metrics.RecordFailure(plan.ActionType, errorType(actionErr))
		}
		e.record(ctx, plan, "execution_failed", "failed", map[string]string{
			"error":       actionErr.Error(),
			"duration_ms": strconv.FormatInt(duration.Milliseconds(), 10),
		})
		return result, actionErr
	}

	result.State = StateSucceeded
	result.Output = output

	// Soft checks: the side effect is already applied, so violations go to
	// the notifier instead of failing the result.
	if output == nil {
		e.notify(ctx, plan, ViolationBadResultShape, "action returned no structured result")
	}
	var exceeded *budget.BudgetExceededError
	if errors.As(timeErr, &exceeded) {
		e.notify(ctx, plan, ViolationPostBudgetExceeded,
			fmt.Sprintf("wall time %dms exceeded ceiling %dms", duration.Milliseconds(), exceeded.Limit))
	}
	if err := e.tracker.Check(ec); err != nil && errors.As(err, &exceeded) {
		e.notify(ctx, plan, ViolationPostBudgetExceeded,
			fmt.Sprintf("cumulative %s usage reached ceiling %d", exceeded.Resource, exceeded.Limit))
	}

	if e.metrics != nil {
		e.metrics.RecordExecution(plan.ActionType, "succeeded", duration)
	}
	e.record(ctx, plan, "execution_succeeded", "succeeded", map[string]string{
		"cohort":      cohort,
		"duration_ms": strconv.FormatInt(duration.Milliseconds(), 10),
		"ops":         strconv.FormatInt(result.Usage.Ops, 10),
		"cost_cents":  strconv.FormatInt(result.Usage.CostCents, 10),
	})
	return result, nil
}

func (e *Executor) notify(ctx context.Context, plan *Plan, kind ViolationKind, detail string) {
	v := &ViolationError{
		Kind:       kind,
		ContextID:  plan.ContextID,
		Agent:      plan.Agent,
		ActionType: plan.ActionType,
		Detail:     detail,
		Soft:       true,
	}
	e.notifier.Notify(ctx, v)
	e.record(ctx, plan, "soft_violation", string(kind), map[string]string{"detail": detail})
}

func (e *Executor) record(ctx context.Context, plan *Plan, kind, outcome string, detail map[string]string) {
	if e.audit == nil {
		return
	}
	if detail == nil {
		detail = map[string]string{}
	}
	detail["context_id"] = plan.ContextID
	e.audit.Record(ctx, audit.NewEvent(audit.CategoryGuardrail, kind, plan.Agent, plan.ActionType, outcome, detail))
}

func (e *Executor) recordFailure(plan *Plan, err error) {
	if e.metrics != nil {
		e.metrics.RecordFailure(plan.ActionType, errorType(err))
	}
	e.record(context.Background(), plan, "pre_execution_rejected", errorType(err), map[string]string{
		"error": err.Error(),
	})
}

// errorType maps an error to a low-cardinality metrics label.
func errorType(err error) string {
	var violation *ViolationError
	if errors.As(err, &violation) {
		return string(violation.Kind)
	}
	var budgetErr *budget.BudgetExceededError
	if errors.As(err, &budgetErr) {
		return "budget_exceeded"
	}
	var invalid *approval.InvalidApprovalError
	if errors.As(err, &invalid) {
		return "invalid_approval"
	}
	var denied *PolicyDeniedError
	if errors.As(err, &denied) {
		return "policy_denied"
	}
	var mismatch *GrantMismatchError
	if errors.As(err, &mismatch) {
		return "grant_mismatch"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "deadline_exceeded"
	}
	return "action_error"
}

func (e *Executor) startSpan(ctx context.Context, plan *Plan) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return e.tracer.Start(ctx, "guardrail.execute",
		attribute.String("warden.agent", plan.Agent),
		attribute.String("warden.action_type", plan.ActionType),
		attribute.String("warden.context_id", plan.ContextID),
	)
}
