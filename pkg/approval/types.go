package approval

import "time"

// Status is the lifecycle state of an approval request. Transitions are
// monotonic: PENDING → APPROVED|DENIED, APPROVED → CONSUMED. Expiry is
// derived from ExpiresAt rather than stored as a transition.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
	StatusConsumed Status = "CONSUMED"
	StatusExpired  Status = "EXPIRED"
)

// Decision is the reviewer's verdict on a request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// Request is a pending or resolved human-approval request. The context
// snapshot is stored as a SHA-256 hash of its canonical encoding so the
// signature covers exactly the (agent, action, context) triple the approval
// was requested for.
type Request struct {
	ID          string
	Agent       string
	Action      string
	ContextHash string
	Reason      string
	Comment     string

	Status    Status
	CreatedAt time.Time
	ExpiresAt time.Time

	// Signature is set when the request is approved.
	Signature []byte

	// Version guards state transitions with optimistic concurrency; every
	// successful transition increments it.
	Version int64
}

// Expired reports whether the request has passed its expiry at the given time.
func (r *Request) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// clone returns a copy so store internals never alias caller-held requests.
func (r *Request) clone() *Request {
	cp := *r
	if r.Signature != nil {
		cp.Signature = make([]byte, len(r.Signature))
		copy(cp.Signature, r.Signature)
	}
	return &cp
}
