package budget

import "fmt"

// Resource names a budgeted dimension.
type Resource string

const (
	ResourceTime Resource = "time_ms"
	ResourceOps  Resource = "ops"
	ResourceCost Resource = "cost_cents"
)

// Ceiling is the upper bound for one execution. A zero field means that
// dimension is unlimited.
type Ceiling struct {
	TimeMillis int64 `yaml:"time_ms"`
	Ops        int64 `yaml:"ops"`
	CostCents  int64 `yaml:"cost_cents"`
}

// Charge is a usage increment. All fields must be non-negative.
type Charge struct {
	TimeMillis int64
	Ops        int64
	CostCents  int64
}

// Usage is a point-in-time copy of a context's counters.
type Usage struct {
	TimeMillis int64
	Ops        int64
	CostCents  int64
}

// BudgetExceededError indicates a charge would cross the ceiling. The charge
// that triggers it is not recorded.
type BudgetExceededError struct {
	ContextID string
	Resource  Resource
	Limit     int64
	Used      int64
	Attempted int64
}

// Error returns the error message.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded for context %s: %s used %d + charge %d > limit %d",
		e.ContextID, e.Resource, e.Used, e.Attempted, e.Limit)
}

// NegativeChargeError indicates a charge with a negative field.
type NegativeChargeError struct {
	ContextID string
	Resource  Resource
	Amount    int64
}

// Error returns the error message.
func (e *NegativeChargeError) Error() string {
	return fmt.Sprintf("negative charge for context %s: %s = %d", e.ContextID, e.Resource, e.Amount)
}
