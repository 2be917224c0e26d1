// Package bundle versions, canary-deploys, and rolls back the configuration
// bundles that govern an agent's policy decisions.
//
// A bundle moves through DRAFT → PROPOSED → APPROVED → CANARY → PROMOTED or
// ROLLED_BACK. Applying a bundle captures an immutable backup of the current
// active bundle before the live pointer swaps, so a rollback can restore the
// prior state exactly. Live and canary bundles sit behind atomic pointers:
// many readers, one writer per agent, no locking on the read path.
//
// Canary routing is deterministic: a context id is hashed (truncated
// SHA-256, a stable language-independent function) into a bucket in [0,100),
// and buckets below the canary percentage route to the canary bundle. The
// same context id always lands in the same bucket, across processes and
// restarts.
package bundle
