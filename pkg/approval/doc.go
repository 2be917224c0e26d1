// Package approval issues, signs, and verifies human-approval tokens for
// actions denied or flagged by policy.
//
// Tokens are keyed-hash signatures (HMAC-SHA256) over a canonical encoding of
// {id, agent, action, context hash, decision, expiry}. The signing key is an
// injected Signer capability, never a package-level secret, so tests supply
// deterministic keys. Verification recomputes the signature and compares it
// in constant time; expiry, prior consumption, and signature mismatch each
// yield a distinct InvalidApprovalError reason.
//
// Consumption is a compare-and-swap on the request's version field, so two
// concurrent verify-and-consume calls on the same token race safely with
// exactly one winner.
package approval
