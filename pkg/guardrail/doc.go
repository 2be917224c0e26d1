// Package guardrail executes proposed agent actions under policy, budget,
// and approval enforcement.
//
// Each execution walks a fixed state machine: PENDING, then APPROVED or
// DENIED by policy, then EXECUTING, then SUCCEEDED or FAILED. Pre-execution
// checks are hard failures and the action is never invoked; post-execution
// checks are soft failures routed to a Notifier because the side effect has
// already happened. A policy deny does not terminate the plan: the executor
// files an approval request and returns a resumable pending result, and the
// caller re-submits the plan with the signed grant to proceed.
package guardrail
