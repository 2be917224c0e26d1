package budget

import (
	"fmt"
	"sync"
	"time"
)

// ExecutionContext holds the live usage counters for one in-flight execution.
// It is owned exclusively by that execution and must not be shared.
type ExecutionContext struct {
	id        string
	ceiling   Ceiling
	createdAt time.Time

	mu    sync.Mutex
	usage Usage
	done  bool
}

// ID returns the context identifier.
func (c *ExecutionContext) ID() string {
	return c.id
}

// Ceiling returns the context's ceiling.
func (c *ExecutionContext) Ceiling() Ceiling {
	return c.ceiling
}

// CreatedAt returns when the context was reserved.
func (c *ExecutionContext) CreatedAt() time.Time {
	return c.createdAt
}

// Deadline derives the execution deadline from the time ceiling. The second
// return value is false when time is unlimited.
func (c *ExecutionContext) Deadline() (time.Time, bool) {
	if c.ceiling.TimeMillis <= 0 {
		return time.Time{}, false
	}
	return c.createdAt.Add(time.Duration(c.ceiling.TimeMillis) * time.Millisecond), true
}

// Usage returns a copy of the current counters.
func (c *ExecutionContext) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Tracker reserves and releases execution contexts.
type Tracker struct {
	mu       sync.Mutex
	contexts map[string]*ExecutionContext
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{contexts: make(map[string]*ExecutionContext)}
}

// Reserve creates the execution context for an invocation. The id must be
// unique among in-flight executions.
func (t *Tracker) Reserve(id string, ceiling Ceiling) (*ExecutionContext, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.contexts[id]; exists {
		return nil, fmt.Errorf("execution context %q already reserved", id)
	}

	ec := &ExecutionContext{
		id:        id,
		ceiling:   ceiling,
		createdAt: time.Now(),
	}
	t.contexts[id] = ec
	return ec, nil
}

// Release destroys the execution context. Its counters are discarded.
func (t *Tracker) Release(ec *ExecutionContext) {
	ec.mu.Lock()
	ec.done = true
	ec.mu.Unlock()

	t.mu.Lock()
	delete(t.contexts, ec.id)
	t.mu.Unlock()
}

// InFlight returns the number of reserved contexts.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.contexts)
}

// Charge records a usage increment on the context. If any dimension of the
// charge would cross the ceiling, nothing is recorded and a
// BudgetExceededError for the first crossing dimension is returned.
func (t *Tracker) Charge(ec *ExecutionContext, charge Charge) error {
	if charge.TimeMillis < 0 {
		return &NegativeChargeError{ContextID: ec.id, Resource: ResourceTime, Amount: charge.TimeMillis}
	}
	if charge.Ops < 0 {
		return &NegativeChargeError{ContextID: ec.id, Resource: ResourceOps, Amount: charge.Ops}
	}
	if charge.CostCents < 0 {
		return &NegativeChargeError{ContextID: ec.id, Resource: ResourceCost, Amount: charge.CostCents}
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()

	if ec.done {
		return fmt.Errorf("execution context %q already released", ec.id)
	}

	if ec.ceiling.TimeMillis > 0 && ec.usage.TimeMillis+charge.TimeMillis > ec.ceiling.TimeMillis {
		return &BudgetExceededError{
			ContextID: ec.id,
			Resource:  ResourceTime,
			Limit:     ec.ceiling.TimeMillis,
			Used:      ec.usage.TimeMillis,
			Attempted: charge.TimeMillis,
		}
	}
	if ec.ceiling.Ops > 0 && ec.usage.Ops+charge.Ops > ec.ceiling.Ops {
		return &BudgetExceededError{
			ContextID: ec.id,
			Resource:  ResourceOps,
			Limit:     ec.ceiling.Ops,
			Used:      ec.usage.Ops,
			Attempted: charge.Ops,
		}
	}
	if ec.ceiling.CostCents > 0 && ec.usage.CostCents+charge.CostCents > ec.ceiling.CostCents {
		return &BudgetExceededError{
			ContextID: ec.id,
			Resource:  ResourceCost,
			Limit:     ec.ceiling.CostCents,
			Used:      ec.usage.CostCents,
			Attempted: charge.CostCents,
		}
	}

	ec.usage.TimeMillis += charge.TimeMillis
	ec.usage.Ops += charge.Ops
	ec.usage.CostCents += charge.CostCents
	return nil
}

// Check verifies the context has headroom left in every limited dimension.
// It returns a BudgetExceededError naming the exhausted dimension otherwise.
func (t *Tracker) Check(ec *ExecutionContext) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if ec.ceiling.TimeMillis > 0 && ec.usage.TimeMillis >= ec.ceiling.TimeMillis {
		return &BudgetExceededError{
			ContextID: ec.id,
			Resource:  ResourceTime,
			Limit:     ec.ceiling.TimeMillis,
			Used:      ec.usage.TimeMillis,
		}
	}
	if ec.ceiling.Ops > 0 && ec.usage.Ops >= ec.ceiling.Ops {
		return &BudgetExceededError{
			ContextID: ec.id,
			Resource:  ResourceOps,
			Limit:     ec.ceiling.Ops,
			Used:      ec.usage.Ops,
		}
	}
	if ec.ceiling.CostCents > 0 && ec.usage.CostCents >= ec.ceiling.CostCents {
		return &BudgetExceededError{
			ContextID: ec.id,
			Resource:  ResourceCost,
			Limit:     ec.ceiling.CostCents,
			Used:      ec.usage.CostCents,
		}
	}
	return nil
}
