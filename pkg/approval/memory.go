package approval

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-process deployments.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]*Request
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*Request)}
}

// Create stores a new request.
func (s *MemoryStore) Create(ctx context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return fmt.Errorf("approval request %s already exists", req.ID)
	}
	s.requests[req.ID] = req.clone()
	return nil
}

// Get returns a copy of the request.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return req.clone(), nil
}

// ListPending returns copies of all pending requests.
func (s *MemoryStore) ListPending(ctx context.Context) ([]*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Request
	for _, req := range s.requests {
		if req.Status == StatusPending {
			out = append(out, req.clone())
		}
	}
	return out, nil
}

// Transition applies a CAS-guarded state change.
func (s *MemoryStore) Transition(ctx context.Context, id string, expectVersion int64, status Status, signature []byte, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	if req.Version != expectVersion {
		return ErrVersionConflict
	}

	req.Status = status
	if signature != nil {
		req.Signature = append([]byte(nil), signature...)
	}
	if comment != "" {
		req.Comment = comment
	}
	req.Version++
	return nil
}
