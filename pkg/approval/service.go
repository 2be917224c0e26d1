package approval

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"warden-hq/warden/pkg/audit"
)

// DefaultTTL is how long an approval stays valid after creation.
const DefaultTTL = 3600 * time.Second

// Service issues, resolves, and verifies approval requests.
type Service struct {
	store  Store
	signer Signer
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
	audit  audit.Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithTTL overrides the default approval lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAudit attaches an audit recorder.
func WithAudit(recorder audit.Recorder) Option {
	return func(s *Service) { s.audit = recorder }
}

// NewService creates an approval service. The store and signer are required.
func NewService(store Store, signer Signer, logger *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("approval store cannot be nil")
	}
	if signer == nil {
		return nil, errors.New("signer cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		store:  store,
		signer: signer,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: logger.With("component", "approval.service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Request creates a pending approval request for an (agent, action, context)
// triple. The context snapshot must be the canonical encoding the guardrail
// executor produced; only its hash is stored.
func (s *Service) Request(ctx context.Context, agent, action string, contextSnapshot []byte, reason string) (*Request, error) {
	now := s.now().UTC()
	req := &Request{
		ID:          uuid.NewString(),
		Agent:       agent,
		Action:      action,
		ContextHash: HashContext(contextSnapshot),
		Reason:      reason,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	if err := s.store.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create approval request: %w", err)
	}

	s.logger.Info("approval requested",
		"approval_id", req.ID,
		"agent", agent,
		"action", action,
		"expires_at", req.ExpiresAt,
	)
	s.record(ctx, req, "requested", string(StatusPending), nil)
	return req, nil
}

// Approve resolves a pending request with the reviewer's decision. On
// approve it signs the canonical payload and returns the hex-encoded token;
// on deny the returned token is empty.
func (s *Service) Approve(ctx context.Context, id string, decision Decision, comment string) (string, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if req.Status != StatusPending {
		return "", &InvalidApprovalError{ID: id, Reason: resolvedReason(req.Status)}
	}
	if req.Expired(s.now()) {
		return "", &InvalidApprovalError{ID: id, Reason: ReasonExpired}
	}

	switch decision {
	case DecisionApprove:
		payload := canonicalPayload(req.ID, req.Agent, req.Action, req.ContextHash, decision, req.ExpiresAt)
		signature := s.signer.Sign(payload)
		if err := s.store.Transition(ctx, id, req.Version, StatusApproved, signature, comment); err != nil {
			return "", err
		}
		s.logger.Info("approval granted", "approval_id", id)
		s.record(ctx, req, "resolved", string(StatusApproved), nil)
		return hex.EncodeToString(signature), nil

	case DecisionDeny:
		if err := s.store.Transition(ctx, id, req.Version, StatusDenied, nil, comment); err != nil {
			return "", err
		}
		s.logger.Info("approval denied", "approval_id", id)
		s.record(ctx, req, "resolved", string(StatusDenied), nil)
		return "", nil

	default:
		return "", fmt.Errorf("unknown decision %q", decision)
	}
}

// resolvedReason maps a non-pending status to the rejection reason a caller
// sees when trying to resolve the request again.
func resolvedReason(status Status) InvalidReason {
	switch status {
	case StatusDenied:
		return ReasonNotApproved
	case StatusExpired:
		return ReasonExpired
	default:
		return ReasonConsumed
	}
}

// Verify checks a token without consuming it. Expiry, consumption, and
// signature mismatch each yield a distinct InvalidApprovalError.
func (s *Service) Verify(ctx context.Context, id, token string) (*Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Expiry is checked before the signature so an expired token always
	// fails regardless of signature validity.
	if req.Expired(s.now()) {
		return nil, &InvalidApprovalError{ID: id, Reason: ReasonExpired}
	}

	switch req.Status {
	case StatusConsumed:
		return nil, &InvalidApprovalError{ID: id, Reason: ReasonConsumed}
	case StatusApproved:
	default:
		return nil, &InvalidApprovalError{ID: id, Reason: ReasonNotApproved}
	}

	signature, err := hex.DecodeString(token)
	if err != nil {
		return nil, &InvalidApprovalError{ID: id, Reason: ReasonBadSignature}
	}

	payload := canonicalPayload(req.ID, req.Agent, req.Action, req.ContextHash, DecisionApprove, req.ExpiresAt)
	if !s.signer.Verify(payload, signature) {
		return nil, &InvalidApprovalError{ID: id, Reason: ReasonBadSignature}
	}
	return req, nil
}

// Consume verifies the token and atomically transitions the request to
// CONSUMED. At most one concurrent caller succeeds; later callers receive an
// InvalidApprovalError with reason "consumed".
func (s *Service) Consume(ctx context.Context, id, token string) (*Request, error) {
	req, err := s.Verify(ctx, id, token)
	if err != nil {
		return nil, err
	}

	err = s.store.Transition(ctx, id, req.Version, StatusConsumed, nil, "")
	if errors.Is(err, ErrVersionConflict) {
		// Another executor consumed the token between our read and the CAS.
		return nil, &InvalidApprovalError{ID: id, Reason: ReasonConsumed}
	}
	if err != nil {
		return nil, err
	}

	req.Status = StatusConsumed
	req.Version++
	s.logger.Info("approval consumed", "approval_id", id, "agent", req.Agent, "action", req.Action)
	s.record(ctx, req, "consumed", string(StatusConsumed), nil)
	return req, nil
}

// ExpirePending marks pending requests whose deadline has passed as EXPIRED
// and returns how many were transitioned. Requests racing a concurrent
// resolution are skipped; the next sweep picks up anything still pending.
func (s *Service) ExpirePending(ctx context.Context) (int, error) {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending approvals: %w", err)
	}

	now := s.now()
	expired := 0
	for _, req := range pending {
		if !req.Expired(now) {
			continue
		}
		err := s.store.Transition(ctx, req.ID, req.Version, StatusExpired, nil, "")
		if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
		s.record(ctx, req, "expired", string(StatusExpired), nil)
	}

	if expired > 0 {
		s.logger.Info("expired stale approvals", "count", expired)
	}
	return expired, nil
}

// Covers reports whether the request was issued for exactly this
// (agent, action, context) triple.
func (r *Request) Covers(agent, action string, contextSnapshot []byte) bool {
	return r.Agent == agent && r.Action == action && r.ContextHash == HashContext(contextSnapshot)
}

// record emits an audit event if a recorder is attached.
func (s *Service) record(ctx context.Context, req *Request, kind, outcome string, extra map[string]string) {
	if s.audit == nil {
		return
	}
	detail := map[string]string{
		"approval_id":  req.ID,
		"context_hash": req.ContextHash,
		"reason":       req.Reason,
	}
	for k, v := range extra {
		detail[k] = v
	}
	s.audit.Record(ctx, audit.NewEvent(audit.CategoryApproval, kind, req.Agent, req.Action, outcome, detail))
}
