// Package budget accounts resource usage per action execution.
//
// A Tracker issues one ExecutionContext per in-flight execution. The context
// owns its counters (elapsed milliseconds, operation count, estimated cost in
// cents); counters are never shared across contexts, so concurrent executions
// do not contend. Every charge is checked against the context's ceiling and a
// BudgetExceededError is raised exactly at the increment that would cross it:
// the crossing charge is not recorded, so observed usage never exceeds the
// ceiling.
//
// Counters are discarded when the context is released; they may be read for
// audit until then.
package budget
