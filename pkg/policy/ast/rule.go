package ast

import (
	"fmt"
	"sort"
)

// Effect is the outcome a rule produces when it matches.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Wildcard matches any agent or action in a rule scope.
const Wildcard = "*"

// Rule binds an (agent, action) scope to an effect, guarded by an optional
// condition tree. Rules never mutate after loading; the engine treats a loaded
// rule set as an immutable snapshot.
type Rule struct {
	ID        string     `yaml:"id"`
	Agent     string     `yaml:"agent"`
	Action    string     `yaml:"action"`
	Effect    Effect     `yaml:"effect"`
	Reason    string     `yaml:"reason"`
	Priority  int        `yaml:"priority"`
	Condition *Condition `yaml:"condition"`
}

// AppliesTo reports whether the rule's scope covers the given agent and
// action. The wildcard "*" covers everything.
func (r *Rule) AppliesTo(agent, action string) bool {
	if r.Agent != Wildcard && r.Agent != agent {
		return false
	}
	if r.Action != Wildcard && r.Action != action {
		return false
	}
	return true
}

// Validate checks a single rule for structural errors.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id cannot be empty")
	}
	if r.Agent == "" {
		return fmt.Errorf("rule %s: agent cannot be empty (use %q for all agents)", r.ID, Wildcard)
	}
	if r.Action == "" {
		return fmt.Errorf("rule %s: action cannot be empty (use %q for all actions)", r.ID, Wildcard)
	}
	if r.Effect != EffectAllow && r.Effect != EffectDeny {
		return fmt.Errorf("rule %s: effect must be %q or %q, got %q", r.ID, EffectAllow, EffectDeny, r.Effect)
	}
	if r.Condition != nil {
		if err := r.Condition.Validate(); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	return nil
}

// ValidateRules validates a rule set and checks id uniqueness.
func ValidateRules(rules []*Rule) error {
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if rule == nil {
			return fmt.Errorf("rule cannot be nil")
		}
		if err := rule.Validate(); err != nil {
			return err
		}
		if seen[rule.ID] {
			return fmt.Errorf("duplicate rule id %q", rule.ID)
		}
		seen[rule.ID] = true
	}
	return nil
}

// SortRules orders rules for deterministic evaluation: priority descending,
// rule id ascending on ties. The sort is performed in place.
func SortRules(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}
