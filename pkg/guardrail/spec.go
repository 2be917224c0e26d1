package guardrail

import (
	"fmt"
	"sync"

	"warden-hq/warden/pkg/budget"
)

// ParamType constrains an action parameter's Go representation.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamNumber ParamType = "number"
	ParamBool   ParamType = "bool"
)

// ActionSpec declares an executable action type: its required parameters
// and its per-execution budget ceiling.
type ActionSpec struct {
	Type           string
	RequiredParams map[string]ParamType
	Ceiling        budget.Ceiling

	// NoOverride makes a policy deny final: the executor fails hard
	// instead of suspending the plan for human approval.
	NoOverride bool
}

// Registry maps action types to their specs and handlers.
type Registry struct {
	mu      sync.RWMutex
	specs   map[string]ActionSpec
	actions map[string]ActionFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:   make(map[string]ActionSpec),
		actions: make(map[string]ActionFunc),
	}
}

// Register binds an action type to its spec and handler. Re-registering a
// type replaces the previous binding.
func (r *Registry) Register(spec ActionSpec, fn ActionFunc) error {
	if spec.Type == "" {
		return fmt.Errorf("action spec requires a type")
	}
	if fn == nil {
		return fmt.Errorf("action %s requires a handler", spec.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Type] = spec
	r.actions[spec.Type] = fn
	return nil
}

// Lookup returns the spec and handler for an action type.
func (r *Registry) Lookup(actionType string) (ActionSpec, ActionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[actionType]
	if !ok {
		return ActionSpec{}, nil, false
	}
	return spec, r.actions[actionType], true
}

// Types returns the registered action types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.specs))
	for t := range r.specs {
		out = append(out, t)
	}
	return out
}

// validateParams checks that every required parameter is present with the
// declared type. It returns the first violation found.
func validateParams(plan *Plan, spec ActionSpec) *ViolationError {
	for name, pt := range spec.RequiredParams {
		raw, ok := plan.Params[name]
		if !ok {
			return &ViolationError{
				Kind:       ViolationMissingParam,
				ContextID:  plan.ContextID,
				Agent:      plan.Agent,
				ActionType: plan.ActionType,
				Detail:     fmt.Sprintf("required parameter %q is missing", name),
			}
		}
		if !paramTypeMatches(raw, pt) {
			return &ViolationError{
				Kind:       ViolationBadParamType,
				ContextID:  plan.ContextID,
				Agent:      plan.Agent,
				ActionType: plan.ActionType,
				Detail:     fmt.Sprintf("parameter %q must be %s, got %T", name, pt, raw),
			}
		}
	}
	return nil
}

func paramTypeMatches(raw any, pt ParamType) bool {
	switch pt {
	case ParamString:
		_, ok := raw.(string)
		return ok
	case ParamNumber:
		switch raw.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case ParamBool:
		_, ok := raw.(bool)
		return ok
	}
	return false
}
