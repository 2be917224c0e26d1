package bundle

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveCanary indicates the agent has no canary deployment.
	ErrNoActiveCanary = errors.New("no active canary for agent")

	// ErrNoBackup indicates a rollback was requested but no backup exists.
	ErrNoBackup = errors.New("no backup captured for agent")
)

// NotFoundError indicates an unknown bundle version for an agent.
type NotFoundError struct {
	Agent   string
	Version int
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("bundle %s/v%d not found", e.Agent, e.Version)
}

// TransitionError indicates an operation was attempted from the wrong state.
type TransitionError struct {
	Agent   string
	Version int
	From    State
	To      State
}

// Error returns the error message.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("bundle %s/v%d: cannot transition %s → %s", e.Agent, e.Version, e.From, e.To)
}

// CanaryPctError indicates an invalid or non-monotonic canary percentage.
type CanaryPctError struct {
	Agent     string
	Current   int
	Requested int
}

// Error returns the error message.
func (e *CanaryPctError) Error() string {
	return fmt.Sprintf("canary pct for %s cannot move from %d to %d", e.Agent, e.Current, e.Requested)
}

// RegressionDetectedError indicates the regression guard rolled a canary
// back. It is emitted alongside the audit event, never silently.
type RegressionDetectedError struct {
	Agent         string
	CanaryVersion int
	Delta         float64
	Reason        string
}

// Error returns the error message.
func (e *RegressionDetectedError) Error() string {
	return fmt.Sprintf("regression detected for %s (canary v%d): quality delta %.4f: %s",
		e.Agent, e.CanaryVersion, e.Delta, e.Reason)
}
