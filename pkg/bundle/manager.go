package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"warden-hq/warden/pkg/audit"
	"warden-hq/warden/pkg/policy/ast"
	"warden-hq/warden/pkg/policy/engine"
	"warden-hq/warden/pkg/telemetry/metrics"
)

// Decider produces a policy decision. The engine's base snapshot is the
// fallback when an agent has no published bundle.
type Decider interface {
	Evaluate(ctx context.Context, agent, action string, ec engine.Context) (*engine.Decision, error)
}

// Manager owns the per-agent bundle registry and the live/canary pointers.
// All writes for one agent serialize on that agent's lock; reads go through
// atomic pointers and never block.
type Manager struct {
	mu     sync.Mutex
	agents map[string]*agentBundles

	fallback Decider
	logger   *slog.Logger
	audit    audit.Recorder
	metrics  *metrics.GovernanceMetrics
}

// agentBundles holds one agent's bundle state.
type agentBundles struct {
	mu sync.Mutex // guards writes; readers use the atomic pointers

	active atomic.Pointer[Bundle]
	canary atomic.Pointer[Bundle]

	// backup is the immutable snapshot of the active bundle captured at
	// Apply time. Only Apply creates it and only Rollback restores it.
	backup *Bundle

	versions    map[int]*Bundle
	nextVersion int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAudit attaches an audit recorder.
func WithAudit(recorder audit.Recorder) ManagerOption {
	return func(m *Manager) { m.audit = recorder }
}

// WithMetrics attaches governance metrics.
func WithMetrics(gm *metrics.GovernanceMetrics) ManagerOption {
	return func(m *Manager) { m.metrics = gm }
}

// NewManager creates a bundle manager. The fallback decider (typically the
// policy engine over the base rule snapshot) governs agents without a
// published bundle; it may be nil, in which case such agents get default
// allow.
func NewManager(fallback Decider, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		agents:   make(map[string]*agentBundles),
		fallback: fallback,
		logger:   logger.With("component", "bundle.manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// agentState returns (creating if needed) the agent's bundle state.
func (m *Manager) agentState(agent string) *agentBundles {
	m.mu.Lock()
	defer m.mu.Unlock()
	ab, ok := m.agents[agent]
	if !ok {
		ab = &agentBundles{versions: make(map[int]*Bundle), nextVersion: 1}
		m.agents[agent] = ab
	}
	return ab
}

// Agents lists all agents with registered bundles.
func (m *Manager) Agents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	agents := make([]string, 0, len(m.agents))
	for agent := range m.agents {
		agents = append(agents, agent)
	}
	return agents
}

// Create registers a draft bundle and assigns its version. Rules are
// validated and sorted into evaluation order (priority descending, id
// ascending) before storage, so Decide can hand them to the engine directly.
func (m *Manager) Create(ctx context.Context, agent string, thresholds map[string]float64, rules []*ast.Rule) (*Bundle, error) {
	if err := ast.ValidateRules(rules); err != nil {
		return nil, fmt.Errorf("bundle rules for %s: %w", agent, err)
	}
	sorted := make([]*ast.Rule, len(rules))
	copy(sorted, rules)
	ast.SortRules(sorted)

	ab := m.agentState(agent)
	ab.mu.Lock()
	defer ab.mu.Unlock()

	b := &Bundle{
		Agent:      agent,
		Version:    ab.nextVersion,
		State:      StateDraft,
		Thresholds: thresholds,
		Rules:      sorted,
		CreatedAt:  time.Now().UTC(),
	}
	ab.nextVersion++
	ab.versions[b.Version] = b

	m.logger.Info("bundle created", "agent", agent, "version", b.Version)
	m.record(ctx, b, "created")
	return b.Clone(), nil
}

// Propose moves a draft to PROPOSED.
func (m *Manager) Propose(ctx context.Context, agent string, version int) error {
	return m.transition(ctx, agent, version, StateDraft, StateProposed, "")
}

// Approve moves a proposed bundle to APPROVED, recording the approval id
// that authorizes a later Apply.
func (m *Manager) Approve(ctx context.Context, agent string, version int, approvalID string) error {
	return m.transition(ctx, agent, version, StateProposed, StateApproved, approvalID)
}

// transition applies a simple state move under the agent lock.
func (m *Manager) transition(ctx context.Context, agent string, version int, from, to State, approvalID string) error {
	ab := m.agentState(agent)
	ab.mu.Lock()
	defer ab.mu.Unlock()

	b, ok := ab.versions[version]
	if !ok {
		return &NotFoundError{Agent: agent, Version: version}
	}
	if b.State != from {
		return &TransitionError{Agent: agent, Version: version, From: b.State, To: to}
	}
	b.State = to
	if approvalID != "" {
		b.ApprovalID = approvalID
	}

	m.logger.Info("bundle transitioned", "agent", agent, "version", version, "state", to)
	m.record(ctx, b, "transitioned")
	return nil
}

// Apply deploys an approved bundle as a canary at the given percentage. It
// captures an immutable backup of the currently active bundle before the
// canary pointer is published.
func (m *Manager) Apply(ctx context.Context, agent string, version int, approvalID string, canaryPct int) error {
	if canaryPct < 0 || canaryPct > 100 {
		return &CanaryPctError{Agent: agent, Requested: canaryPct}
	}

	ab := m.agentState(agent)
	ab.mu.Lock()
	defer ab.mu.Unlock()

	b, ok := ab.versions[version]
	if !ok {
		return &NotFoundError{Agent: agent, Version: version}
	}
	if b.State != StateApproved {
		return &TransitionError{Agent: agent, Version: version, From: b.State, To: StateCanary}
	}
	if b.ApprovalID == "" || b.ApprovalID != approvalID {
		return fmt.Errorf("bundle %s/v%d: approval id mismatch", agent, version)
	}

	// Backup precedes the pointer swap so rollback can always restore the
	// pre-canary state exactly.
	active := ab.active.Load()
	ab.backup = active.Clone()

	b.State = StateCanary
	b.CanaryPct = canaryPct
	if active != nil {
		b.BackupVersion = active.Version
	}
	ab.canary.Store(b.Clone())

	m.logger.Info("bundle canary deployed",
		"agent", agent,
		"version", version,
		"canary_pct", canaryPct,
		"backup_version", b.BackupVersion,
	)
	m.record(ctx, b, "canary_deployed")
	if m.metrics != nil {
		m.metrics.RecordBundleTransition(agent, string(StateCanary))
	}
	return nil
}

// RaiseCanary increases the canary percentage. The percentage never
// decreases except through Rollback.
func (m *Manager) RaiseCanary(ctx context.Context, agent string, pct int) error {
	ab := m.agentState(agent)
	ab.mu.Lock()
	defer ab.mu.Unlock()

	canary := ab.canary.Load()
	if canary == nil {
		return ErrNoActiveCanary
	}
	if pct < canary.CanaryPct || pct > 100 {
		return &CanaryPctError{Agent: agent, Current: canary.CanaryPct, Requested: pct}
	}

	next := canary.Clone()
	next.CanaryPct = pct
	ab.canary.Store(next)
	ab.versions[next.Version] = next

	m.logger.Info("canary raised", "agent", agent, "version", next.Version, "canary_pct", pct)
	m.record(ctx, next, "canary_raised")
	return nil
}

// Promote makes the canary bundle fully active and clears the canary.
func (m *Manager) Promote(ctx context.Context, agent string) error {
	ab := m.agentState(agent)
	ab.mu.Lock()
	defer ab.mu.Unlock()

	canary := ab.canary.Load()
	if canary == nil {
		return ErrNoActiveCanary
	}

	promoted := canary.Clone()
	promoted.State = StatePromoted
	promoted.CanaryPct = 100
	ab.versions[promoted.Version] = promoted

	ab.active.Store(promoted)
	ab.canary.Store(nil)
	ab.backup = nil

	m.logger.Info("bundle promoted", "agent", agent, "version", promoted.Version)
	m.record(ctx, promoted, "promoted")
	if m.metrics != nil {
		m.metrics.RecordBundleTransition(agent, string(StatePromoted))
	}
	return nil
}

// Rollback aborts the canary, restores the active bundle from the backup
// exactly, and marks the canary bundle ROLLED_BACK with its percentage reset
// to zero.
func (m *Manager) Rollback(ctx context.Context, agent, reason string) error {
	ab := m.agentState(agent)
	ab.mu.Lock()
	defer ab.mu.Unlock()

	canary := ab.canary.Load()
	if canary == nil {
		return ErrNoActiveCanary
	}

	rolledBack := canary.Clone()
	rolledBack.State = StateRolledBack
	rolledBack.CanaryPct = 0
	ab.versions[rolledBack.Version] = rolledBack

	ab.active.Store(ab.backup)
	ab.canary.Store(nil)
	ab.backup = nil

	m.logger.Warn("bundle rolled back",
		"agent", agent,
		"version", rolledBack.Version,
		"restored_version", rolledBack.BackupVersion,
		"reason", reason,
	)
	m.record(ctx, rolledBack, "rolled_back")
	if m.metrics != nil {
		m.metrics.RecordBundleTransition(agent, string(StateRolledBack))
	}
	return nil
}

// Active returns the agent's active bundle, or nil.
func (m *Manager) Active(agent string) *Bundle {
	return m.agentState(agent).active.Load()
}

// Canary returns the agent's canary bundle, or nil.
func (m *Manager) Canary(agent string) *Bundle {
	return m.agentState(agent).canary.Load()
}

// Get returns a bundle by version.
func (m *Manager) Get(agent string, version int) (*Bundle, error) {
	ab := m.agentState(agent)
	ab.mu.Lock()
	defer ab.mu.Unlock()
	b, ok := ab.versions[version]
	if !ok {
		return nil, &NotFoundError{Agent: agent, Version: version}
	}
	return b.Clone(), nil
}

// Route picks the governing bundle for one execution context. Contexts whose
// bucket falls below the canary percentage get the canary bundle; everyone
// else gets the active bundle. The cohort name is returned for metrics and
// regression attribution.
func (m *Manager) Route(agent, contextID string) (*Bundle, string) {
	ab := m.agentState(agent)

	canary := ab.canary.Load()
	if canary != nil && Bucket(contextID) < canary.CanaryPct {
		if m.metrics != nil {
			m.metrics.RecordCanaryRoute(agent, "canary")
		}
		return canary, "canary"
	}
	if m.metrics != nil {
		m.metrics.RecordCanaryRoute(agent, "control")
	}
	return ab.active.Load(), "control"
}

// Decide evaluates the routed bundle's rule set for one execution context,
// falling back to the base decider when the routed bundle carries no rules.
func (m *Manager) Decide(ctx context.Context, agent, action, contextID string, ec engine.Context) (*engine.Decision, string, error) {
	b, cohort := m.Route(agent, contextID)
	if b == nil || len(b.Rules) == 0 {
		if m.fallback == nil {
			return &engine.Decision{Effect: ast.EffectAllow, Reason: "default allow", Default: true}, cohort, nil
		}
		d, err := m.fallback.Evaluate(ctx, agent, action, ec)
		return d, cohort, err
	}
	d, err := engine.EvaluateRules(ctx, b.Rules, agent, action, ec)
	return d, cohort, err
}

// record emits an audit event if a recorder is attached.
func (m *Manager) record(ctx context.Context, b *Bundle, kind string) {
	if m.audit == nil {
		return
	}
	detail := map[string]string{
		"version":    strconv.Itoa(b.Version),
		"state":      string(b.State),
		"canary_pct": strconv.Itoa(b.CanaryPct),
	}
	if b.ApprovalID != "" {
		detail["approval_id"] = b.ApprovalID
	}
	m.audit.Record(ctx, audit.NewEvent(audit.CategoryBundle, kind, b.Agent, "", string(b.State), detail))
}
