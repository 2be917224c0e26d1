package ast

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ValueKind represents the type of a literal value in a rule or context.
// Values are strongly typed with no automatic coercion.
type ValueKind string

const (
	ValueString ValueKind = "string"
	ValueNumber ValueKind = "number"
	ValueBool   ValueKind = "bool"
)

// Value is a typed literal used both as comparison operands in conditions and
// as field values in evaluation contexts.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

// String constructs a string value.
func String(s string) Value {
	return Value{Kind: ValueString, Str: s}
}

// Number constructs a numeric value.
func Number(n float64) Value {
	return Value{Kind: ValueNumber, Num: n}
}

// Bool constructs a boolean value.
func Bool(b bool) Value {
	return Value{Kind: ValueBool, Bool: b}
}

// Equal reports whether two values have the same kind and the same content.
// Values of different kinds are never equal.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ValueString:
		return v.Str == o.Str
	case ValueNumber:
		return v.Num == o.Num
	case ValueBool:
		return v.Bool == o.Bool
	}
	return false
}

// Compare orders two numeric values. It returns -1, 0, or +1, and an error if
// either value is not a number.
func (v Value) Compare(o Value) (int, error) {
	if v.Kind != ValueNumber || o.Kind != ValueNumber {
		return 0, &TypeError{Expected: ValueNumber, Got: v.Kind, Other: o.Kind}
	}
	switch {
	case v.Num < o.Num:
		return -1, nil
	case v.Num > o.Num:
		return 1, nil
	default:
		return 0, nil
	}
}

// GoString returns a human-readable representation for logs and diagnostics.
func (v Value) GoString() string {
	switch v.Kind {
	case ValueString:
		return strconv.Quote(v.Str)
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	}
	return "<invalid>"
}

// TypeError indicates a comparison between incompatible value kinds.
type TypeError struct {
	Expected ValueKind
	Got      ValueKind
	Other    ValueKind
}

// Error returns the error message.
func (e *TypeError) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, got %s and %s", e.Expected, e.Got, e.Other)
}

// UnmarshalYAML decodes a scalar YAML node into a typed value. The YAML tag
// determines the kind; quoted numbers stay strings.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("value must be a scalar, got %s", yamlKindName(node.Kind))
	}

	switch node.Tag {
	case "!!int", "!!float":
		n, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", node.Value, err)
		}
		*v = Number(n)
	case "!!bool":
		b, err := strconv.ParseBool(node.Value)
		if err != nil {
			return fmt.Errorf("invalid bool %q: %w", node.Value, err)
		}
		*v = Bool(b)
	case "!!str":
		*v = String(node.Value)
	default:
		return fmt.Errorf("unsupported value tag %s", node.Tag)
	}
	return nil
}

// MarshalYAML encodes the value as a plain scalar.
func (v Value) MarshalYAML() (interface{}, error) {
	switch v.Kind {
	case ValueString:
		return v.Str, nil
	case ValueNumber:
		return v.Num, nil
	case ValueBool:
		return v.Bool, nil
	}
	return nil, fmt.Errorf("cannot marshal value of kind %q", v.Kind)
}

// yamlKindName names a yaml.Kind for error messages.
func yamlKindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "unknown"
}
