package engine

import (
	"fmt"

	"warden-hq/warden/pkg/policy/ast"
)

// evalCondition evaluates a rule's condition tree against a context.
// A nil condition always matches. A comparison against a missing field never
// matches; a comparison between incompatible types is an error.
func evalCondition(rule *ast.Rule, ec Context) (bool, error) {
	if rule.Condition == nil {
		return true, nil
	}
	matched, err := evalNode(rule.Condition, ec)
	if err != nil {
		if ce, ok := err.(*ConditionError); ok {
			return false, ce
		}
		return false, &ConditionError{RuleID: rule.ID, Cause: err}
	}
	return matched, nil
}

// evalNode evaluates a single condition node.
func evalNode(c *ast.Condition, ec Context) (bool, error) {
	switch c.Kind {
	case ast.CondAll:
		for _, child := range c.Children {
			matched, err := evalNode(child, ec)
			if err != nil {
				return false, err
			}
			if !matched {
				return false, nil
			}
		}
		return true, nil

	case ast.CondAny:
		for _, child := range c.Children {
			matched, err := evalNode(child, ec)
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}
		return false, nil

	case ast.CondNot:
		matched, err := evalNode(c.Children[0], ec)
		if err != nil {
			return false, err
		}
		return !matched, nil

	case ast.CondEq, ast.CondNe:
		field, ok := ec[c.Field]
		if !ok {
			return false, nil
		}
		equal := field.Equal(c.Value)
		if c.Kind == ast.CondNe {
			return !equal, nil
		}
		return equal, nil

	case ast.CondGt, ast.CondGte, ast.CondLt, ast.CondLte:
		field, ok := ec[c.Field]
		if !ok {
			return false, nil
		}
		cmp, err := field.Compare(c.Value)
		if err != nil {
			return false, &ConditionError{Field: c.Field, Cause: err}
		}
		switch c.Kind {
		case ast.CondGt:
			return cmp > 0, nil
		case ast.CondGte:
			return cmp >= 0, nil
		case ast.CondLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}

	default:
		return false, fmt.Errorf("unknown condition kind %q", c.Kind)
	}
}
