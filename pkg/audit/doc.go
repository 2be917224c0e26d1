// Package audit records append-only governance events: approval issuance and
// consumption, guardrail outcomes, bundle transitions, rollbacks, and
// promotions.
//
// Events carry a SHA-256 hash of their payload so exported trails can be
// checked for tampering. Recording never blocks the governed operation: a
// failed write is logged and dropped, it does not fail the caller.
package audit
