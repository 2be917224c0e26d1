package approval

import "context"

// Store persists approval requests.
//
// Transition applies a state change guarded by optimistic concurrency: the
// update succeeds only if the stored version still equals expectVersion, and
// increments the version on success. Implementations return
// ErrVersionConflict when the guard fails, which is how concurrent
// verify-and-consume races resolve to a single winner.
type Store interface {
	Create(ctx context.Context, req *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	Transition(ctx context.Context, id string, expectVersion int64, status Status, signature []byte, comment string) error

	// ListPending returns all requests still in StatusPending.
	ListPending(ctx context.Context) ([]*Request, error)
}
