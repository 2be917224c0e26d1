package guardrail

import (
	"context"
	"log/slog"
	"sync"
)

// Notifier receives post-execution soft violations. The side effect has
// already been applied when Notify fires, so implementations alert rather
// than compensate.
type Notifier interface {
	Notify(ctx context.Context, v *ViolationError)
}

// LogNotifier reports soft violations to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "guardrail.notifier")}
}

// Notify logs the violation at warn level.
func (n *LogNotifier) Notify(ctx context.Context, v *ViolationError) {
	n.logger.Warn("post-execution guardrail violation",
		"kind", string(v.Kind),
		"context_id", v.ContextID,
		"agent", v.Agent,
		"action_type", v.ActionType,
		"detail", v.Detail,
	)
}

// MemoryNotifier captures violations for tests.
type MemoryNotifier struct {
	mu         sync.Mutex
	violations []*ViolationError
}

// NewMemoryNotifier creates an empty capture notifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

// Notify records the violation.
func (n *MemoryNotifier) Notify(ctx context.Context, v *ViolationError) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.violations = append(n.violations, v)
}

// Violations returns a copy of the captured violations.
func (n *MemoryNotifier) Violations() []*ViolationError {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*ViolationError, len(n.violations))
	copy(out, n.violations)
	return out
}
