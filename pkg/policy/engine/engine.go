package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"warden-hq/warden/pkg/policy/ast"
)

// RuleSource provides rules to the engine.
type RuleSource interface {
	// Load loads the full rule set from the source.
	Load(ctx context.Context) ([]*ast.Rule, error)

	// Watch watches for rule changes and sends events on the returned
	// channel. The channel is closed when the context is cancelled.
	Watch(ctx context.Context) (<-chan ChangeEvent, error)

	// Name identifies the source in logs and errors.
	Name() string
}

// ChangeEvent signals that the rule source's content changed.
type ChangeEvent struct {
	Path string
	Err  error
}

// Engine evaluates the active rule-set snapshot.
type Engine struct {
	snapshot atomic.Pointer[Snapshot]
	source   RuleSource
	logger   *slog.Logger

	stopCh chan struct{}
	stopMu sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates an engine, performs the initial load, and starts watching the
// source for changes.
func New(ctx context.Context, source RuleSource, logger *slog.Logger) (*Engine, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		source: source,
		logger: logger.With("component", "policy.engine"),
		stopCh: make(chan struct{}),
	}

	if err := e.Reload(ctx); err != nil {
		return nil, fmt.Errorf("initial rule load: %w", err)
	}

	e.startWatching(ctx)
	return e, nil
}

// Evaluate decides allow or deny for one (agent, action, context) triple
// against the active snapshot.
func (e *Engine) Evaluate(ctx context.Context, agent, action string, ec Context) (*Decision, error) {
	return EvaluateRules(ctx, e.snapshot.Load().rules, agent, action, ec)
}

// EvaluateRules decides allow or deny for one (agent, action, context)
// triple against a rule set already in evaluation order (see ast.SortRules).
//
// The first rule whose scope and condition match wins, except that a matching
// deny rule at the same priority as the first match overrides a matching
// allow. With no match the default effect is allow. A condition that cannot
// be evaluated against this context (missing field, type mismatch) never
// matches; this keeps decisions deterministic for a given context instead of
// failing the whole evaluation.
func EvaluateRules(ctx context.Context, rules []*ast.Rule, agent, action string, ec Context) (*Decision, error) {
	start := time.Now()

	var winner *ast.Rule
	for _, rule := range rules {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if winner != nil && rule.Priority != winner.Priority {
			break
		}

		if !rule.AppliesTo(agent, action) {
			continue
		}

		matched, err := evalCondition(rule, ec)
		if err != nil || !matched {
			continue
		}

		if winner == nil {
			winner = rule
			if rule.Effect == ast.EffectDeny {
				break
			}
			// An allow matched; keep scanning this priority band for a
			// deny, which wins the tie.
			continue
		}
		if rule.Effect == ast.EffectDeny {
			winner = rule
			break
		}
	}

	if winner == nil {
		return &Decision{
			Effect:         ast.EffectAllow,
			Reason:         "default allow",
			Default:        true,
			EvaluationTime: time.Since(start),
		}, nil
	}

	return &Decision{
		Effect:         winner.Effect,
		MatchedRuleID:  winner.ID,
		Reason:         winner.Reason,
		EvaluationTime: time.Since(start),
	}, nil
}

// Reload loads rules from the source and atomically publishes a new
// snapshot. On failure the previous snapshot stays active.
func (e *Engine) Reload(ctx context.Context) error {
	rules, err := e.source.Load(ctx)
	if err != nil {
		return &ReloadError{Source: e.source.Name(), Cause: err}
	}
	if err := ast.ValidateRules(rules); err != nil {
		return &ReloadError{Source: e.source.Name(), Cause: err}
	}

	ast.SortRules(rules)

	snap := &Snapshot{
		rules:    rules,
		version:  rulesVersion(rules),
		loadTime: time.Now(),
	}
	e.snapshot.Store(snap)

	e.logger.Info("rule snapshot published",
		"source", e.source.Name(),
		"rule_count", len(rules),
		"version", snap.version,
	)
	return nil
}

// ActiveSnapshot returns the currently published snapshot.
func (e *Engine) ActiveSnapshot() *Snapshot {
	return e.snapshot.Load()
}

// startWatching subscribes to source change events and reloads on each one.
func (e *Engine) startWatching(ctx context.Context) {
	eventCh, err := e.source.Watch(ctx)
	if err != nil {
		e.logger.Warn("rule source does not support watching", "source", e.source.Name(), "error", err)
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-e.stopCh:
				return
			case event, ok := <-eventCh:
				if !ok {
					return
				}
				if event.Err != nil {
					e.logger.Error("rule watch error", "error", event.Err)
					continue
				}
				e.logger.Info("rule source changed", "path", event.Path)
				if err := e.Reload(context.Background()); err != nil {
					e.logger.Error("reload after change failed, keeping previous snapshot", "error", err)
				}
			}
		}
	}()
}

// Close stops the watcher goroutine. The last published snapshot remains
// readable after Close.
func (e *Engine) Close() error {
	e.stopMu.Lock()
	defer e.stopMu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.closed = true
	close(e.stopCh)
	e.wg.Wait()
	return nil
}

// rulesVersion computes a content hash over the rule set in evaluation order.
func rulesVersion(rules []*ast.Rule) string {
	h := sha256.New()
	for _, rule := range rules {
		fmt.Fprintf(h, "%s|%s|%s|%s|%d\n", rule.ID, rule.Agent, rule.Action, rule.Effect, rule.Priority)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
