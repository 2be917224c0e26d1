package ast

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ConditionKind discriminates the condition tagged union.
type ConditionKind string

const (
	CondEq  ConditionKind = "eq"  // field == value
	CondNe  ConditionKind = "ne"  // field != value
	CondGt  ConditionKind = "gt"  // field > value (numeric)
	CondGte ConditionKind = "gte" // field >= value (numeric)
	CondLt  ConditionKind = "lt"  // field < value (numeric)
	CondLte ConditionKind = "lte" // field <= value (numeric)
	CondAll ConditionKind = "all" // AND of children
	CondAny ConditionKind = "any" // OR of children
	CondNot ConditionKind = "not" // negation of a single child
)

// Condition is a node in the condition tree. Comparison nodes use Field and
// Value; logical nodes use Children. A nil condition always matches.
type Condition struct {
	Kind     ConditionKind
	Field    string
	Value    Value
	Children []*Condition
}

// IsComparison returns true for eq/ne/gt/gte/lt/lte nodes.
func (c *Condition) IsComparison() bool {
	switch c.Kind {
	case CondEq, CondNe, CondGt, CondGte, CondLt, CondLte:
		return true
	}
	return false
}

// IsLogical returns true for all/any/not nodes.
func (c *Condition) IsLogical() bool {
	return c.Kind == CondAll || c.Kind == CondAny || c.Kind == CondNot
}

// Validate checks structural invariants of the condition tree.
func (c *Condition) Validate() error {
	switch {
	case c.IsComparison():
		if c.Field == "" {
			return fmt.Errorf("%s condition requires a field", c.Kind)
		}
		if len(c.Children) > 0 {
			return fmt.Errorf("%s condition cannot have children", c.Kind)
		}
		if c.Kind != CondEq && c.Kind != CondNe && c.Value.Kind != ValueNumber {
			return fmt.Errorf("%s condition requires a numeric value, got %s", c.Kind, c.Value.Kind)
		}
	case c.Kind == CondAll, c.Kind == CondAny:
		if len(c.Children) == 0 {
			return fmt.Errorf("%s condition requires at least one child", c.Kind)
		}
	case c.Kind == CondNot:
		if len(c.Children) != 1 {
			return fmt.Errorf("not condition requires exactly one child, got %d", len(c.Children))
		}
	default:
		return fmt.Errorf("unknown condition kind %q", c.Kind)
	}

	for _, child := range c.Children {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// conditionDoc is the on-disk shape of a condition node. Logical operators are
// given as keys (all/any/not), comparisons as field/op/value triples.
type conditionDoc struct {
	All []*Condition `yaml:"all"`
	Any []*Condition `yaml:"any"`
	Not *Condition   `yaml:"not"`

	Field string     `yaml:"field"`
	Op    string     `yaml:"op"`
	Value *yaml.Node `yaml:"value"`
}

// UnmarshalYAML decodes a condition node from its document form.
func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	var doc conditionDoc
	if err := node.Decode(&doc); err != nil {
		return err
	}

	logical := 0
	if doc.All != nil {
		logical++
	}
	if doc.Any != nil {
		logical++
	}
	if doc.Not != nil {
		logical++
	}
	if logical > 1 {
		return fmt.Errorf("condition cannot combine all/any/not at the same level")
	}

	switch {
	case doc.All != nil:
		*c = Condition{Kind: CondAll, Children: doc.All}
	case doc.Any != nil:
		*c = Condition{Kind: CondAny, Children: doc.Any}
	case doc.Not != nil:
		*c = Condition{Kind: CondNot, Children: []*Condition{doc.Not}}
	default:
		if doc.Field == "" {
			return fmt.Errorf("comparison condition requires a field")
		}
		kind, err := parseComparisonOp(doc.Op)
		if err != nil {
			return err
		}
		var value Value
		if doc.Value == nil {
			return fmt.Errorf("comparison condition on field %q requires a value", doc.Field)
		}
		if err := doc.Value.Decode(&value); err != nil {
			return fmt.Errorf("field %q: %w", doc.Field, err)
		}
		*c = Condition{Kind: kind, Field: doc.Field, Value: value}
	}
	return nil
}

// MarshalYAML encodes the condition back into its document form.
func (c *Condition) MarshalYAML() (interface{}, error) {
	switch c.Kind {
	case CondAll:
		return map[string][]*Condition{"all": c.Children}, nil
	case CondAny:
		return map[string][]*Condition{"any": c.Children}, nil
	case CondNot:
		return map[string]*Condition{"not": c.Children[0]}, nil
	default:
		return map[string]interface{}{
			"field": c.Field,
			"op":    string(c.Kind),
			"value": c.Value,
		}, nil
	}
}

// parseComparisonOp maps an operator string to a comparison kind. An empty
// operator defaults to equality.
func parseComparisonOp(op string) (ConditionKind, error) {
	switch op {
	case "", "eq", "==":
		return CondEq, nil
	case "ne", "!=":
		return CondNe, nil
	case "gt", ">":
		return CondGt, nil
	case "gte", ">=":
		return CondGte, nil
	case "lt", "<":
		return CondLt, nil
	case "lte", "<=":
		return CondLte, nil
	}
	return "", fmt.Errorf("unknown comparison operator %q", op)
}
